package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jonathan/auto-evaluator/internal/config"
	"github.com/jonathan/auto-evaluator/internal/failure"
	"github.com/jonathan/auto-evaluator/internal/logging"
	"github.com/jonathan/auto-evaluator/internal/retry"
	"github.com/jonathan/auto-evaluator/internal/types"
)

// MaxFeedbackChars is the longest feedback text written to a cell.
const MaxFeedbackChars = 5000

// Attempt counts per operation.
const (
	ReadAttempts  = 5
	FetchAttempts = 3
	WriteAttempts = 5
)

// Default backoff between attempts.
const (
	DefaultBaseDelay = 2 * time.Second
	DefaultMaxDelay  = 30 * time.Second
	DefaultTimeout   = 60 * time.Second
)

// Columns names the sheet columns by role, as letters.
type Columns struct {
	DocLink  string
	Label    string
	Score    string
	Feedback string
}

// Options configures a Client.
type Options struct {
	SpreadsheetID  string
	SheetName      string
	Columns        Columns
	RequestTimeout time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	// CacheSize bounds the document text cache; zero disables it.
	CacheSize  int
	RateLimits map[Service]RateLimit
	// DriveFallback downloads non-Docs files through Drive when documents.get rejects them.
	DriveFallback bool
	Logger        *slog.Logger
	// OnRetry is called before each retry wait with the operation name.
	OnRetry func(op string, attempt int, err error)
	// OnReconnect is called each time the backend is rebuilt after a transport failure.
	OnReconnect func()
}

// Client is the sheet source/sink and document fetcher. It is safe for concurrent use.
type Client struct {
	opts     Options
	holder   *connHolder
	limiters map[Service]*limiter
	cache    *lru.Cache[string, string]
	logger   *slog.Logger
}

// NewClient creates a Client. The backend is built on first use.
func NewClient(connect Connector, opts Options) (*Client, error) {
	if connect == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultTimeout
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	opts.Columns = normalizeColumns(opts.Columns)

	c := &Client{
		opts:     opts,
		limiters: newLimiters(opts.RateLimits),
		logger:   logging.OrDiscard(opts.Logger).With("component", "workspace"),
	}
	c.holder = newConnHolder(connect, func() {
		c.logger.Info("rebuilt Google API connection")
		if opts.OnReconnect != nil {
			opts.OnReconnect()
		}
	})
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create document cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

func normalizeColumns(cols Columns) Columns {
	def := func(v, d string) string {
		if v == "" {
			return d
		}
		return strings.ToUpper(v)
	}
	return Columns{
		DocLink:  def(cols.DocLink, "A"),
		Label:    def(cols.Label, "B"),
		Score:    def(cols.Score, "C"),
		Feedback: def(cols.Feedback, "D"),
	}
}

// call runs fn against the shared backend with rate limiting, a per-attempt timeout,
// classification and retry. A transport failure drops the backend it ran against.
func (c *Client) call(ctx context.Context, op string, svc Service, attempts int, fn func(ctx context.Context, b Backend) error) error {
	policy := retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   c.opts.BaseDelay,
		MaxDelay:    c.opts.MaxDelay,
		Retryable:   failure.IsRetryable,
		OnRetry: func(attempt int, err error) {
			c.logger.Warn("remote call failed, retrying", "op", op, "attempt", attempt, "kind", failure.KindOf(err).String(), "error", err)
			if c.opts.OnRetry != nil {
				c.opts.OnRetry(op, attempt, err)
			}
		},
	}
	return retry.Do(ctx, policy, func(ctx context.Context) error {
		backend, gen, err := c.holder.get(ctx)
		if err != nil {
			// Credentials that cannot be parsed will not improve on retry.
			return failure.New(failure.KindAuth, op, "failed to connect", err)
		}
		if err := c.limiters[svc].wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
		err = failure.FromRemote(op, fn(callCtx, backend))
		switch failure.KindOf(err) {
		case failure.KindTransport:
			if c.holder.invalidate(gen) {
				c.logger.Debug("dropped Google API connection", "op", op, "generation", gen)
			}
		case failure.KindRateLimit:
			c.limiters[svc].pause(c.opts.BaseDelay)
		}
		return err
	})
}

// A1 returns rangeSpec qualified with the configured sheet name.
func (c *Client) A1(rangeSpec string) string {
	if c.opts.SheetName == "" {
		return rangeSpec
	}
	return "'" + strings.ReplaceAll(c.opts.SheetName, "'", "''") + "'!" + rangeSpec
}

// ReadRows returns the values of rangeSpec, qualified with the sheet name.
func (c *Client) ReadRows(ctx context.Context, rangeSpec string) ([][]string, error) {
	var rows [][]string
	err := c.call(ctx, "sheets.read", ServiceSheets, ReadAttempts, func(ctx context.Context, b Backend) error {
		var err error
		rows, err = b.GetValues(ctx, c.opts.SpreadsheetID, c.A1(rangeSpec))
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("read sheet rows", "range", rangeSpec, "rows", len(rows))
	return rows, nil
}

// ReadWorkItems reads the document-link and label columns from startRow to the end of the
// sheet in one request. Item positions are 1-based sheet rows.
func (c *Client) ReadWorkItems(ctx context.Context, startRow int) ([]types.WorkItem, error) {
	if startRow < 1 {
		startRow = 1
	}
	first, last := c.opts.Columns.DocLink, c.opts.Columns.Label
	labelOffset := config.ColumnIndex(last) - config.ColumnIndex(first)
	if labelOffset < 0 {
		last = first
		labelOffset = -1
	}

	rows, err := c.ReadRows(ctx, fmt.Sprintf("%s%d:%s", first, startRow, last))
	if err != nil {
		return nil, err
	}

	items := make([]types.WorkItem, len(rows))
	for i, row := range rows {
		item := types.WorkItem{Position: startRow + i}
		if len(row) > 0 {
			item.Reference = strings.TrimSpace(row[0])
		}
		if labelOffset > 0 && len(row) > labelOffset {
			item.Label = strings.TrimSpace(row[labelOffset])
		}
		items[i] = item
	}
	return items, nil
}

// FetchDocumentText returns the text of a Google Doc. A file that the Docs API rejects is
// downloaded through Drive instead when DriveFallback is set and the file is HTML or text.
func (c *Client) FetchDocumentText(ctx context.Context, docID string) (string, error) {
	if c.cache != nil {
		if text, ok := c.cache.Get(docID); ok {
			return text, nil
		}
	}

	var text string
	err := c.call(ctx, "docs.get", ServiceDocs, FetchAttempts, func(ctx context.Context, b Backend) error {
		doc, err := b.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		text = ExtractText(doc)
		return nil
	})
	if err != nil && c.opts.DriveFallback && ctx.Err() == nil {
		switch failure.KindOf(err) {
		case failure.KindValidation, failure.KindNotFound:
			if fallback, ok := c.fetchViaDrive(ctx, docID); ok {
				text, err = fallback, nil
			}
		}
	}
	if err != nil {
		return "", err
	}

	c.logger.Debug("fetched document text", "doc_id", docID, "chars", len(text))
	if c.cache != nil {
		c.cache.Add(docID, text)
	}
	return text, nil
}

func (c *Client) fetchViaDrive(ctx context.Context, docID string) (string, bool) {
	meta, err := c.DocumentMetadata(ctx, docID)
	if err != nil || meta.MimeType == MimeTypeGoogleDoc || !isTextMime(meta.MimeType) {
		return "", false
	}

	var data []byte
	err = c.call(ctx, "drive.download", ServiceDrive, FetchAttempts, func(ctx context.Context, b Backend) error {
		var err error
		data, err = b.DownloadFile(ctx, docID)
		return err
	})
	if err != nil {
		c.logger.Warn("drive download failed", "doc_id", docID, "error", err)
		return "", false
	}

	if meta.MimeType == MimeTypeHTML {
		text, err := HTMLText(data)
		if err != nil {
			c.logger.Warn("failed to extract HTML text", "doc_id", docID, "error", err)
			return "", false
		}
		return text, true
	}
	return strings.TrimSpace(string(data)), true
}

// DocumentMetadata returns Drive metadata for docID.
func (c *Client) DocumentMetadata(ctx context.Context, docID string) (*DocumentMetadata, error) {
	var meta *DocumentMetadata
	err := c.call(ctx, "drive.metadata", ServiceDrive, FetchAttempts, func(ctx context.Context, b Backend) error {
		var err error
		meta, err = b.GetFileMetadata(ctx, docID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// WriteResult writes scoreText and feedback into the score and feedback cells of row
// position in one RAW update. Feedback is truncated to MaxFeedbackChars. A validation
// rejection from the sheet is logged and not returned.
func (c *Client) WriteResult(ctx context.Context, position int, scoreText, feedback string) error {
	rangeSpec := fmt.Sprintf("%s%d:%s%d", c.opts.Columns.Score, position, c.opts.Columns.Feedback, position)
	row := []any{scoreText, TruncateFeedback(feedback)}

	err := c.call(ctx, "sheets.write", ServiceSheets, WriteAttempts, func(ctx context.Context, b Backend) error {
		return b.UpdateValues(ctx, c.opts.SpreadsheetID, c.A1(rangeSpec), row)
	})
	if errors.Is(err, failure.Validation) {
		c.logger.Error("sheet rejected result values", "row", position, "range", rangeSpec, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.Info("updated row with results", "row", position, "score", scoreText)
	return nil
}

// TruncateFeedback shortens text over MaxFeedbackChars to MaxFeedbackChars-3 characters
// followed by "...".
func TruncateFeedback(text string) string {
	if len(text) <= MaxFeedbackChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= MaxFeedbackChars {
		return text
	}
	return string(runes[:MaxFeedbackChars-3]) + "..."
}
