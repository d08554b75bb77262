package workspace

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"

	"github.com/jonathan/auto-evaluator/internal/failure"
)

type update struct {
	rangeSpec string
	row       []any
}

// fakeBackend serves canned data. Each *Errs queue is consumed one error per call; a nil
// entry or an empty queue means the call succeeds.
type fakeBackend struct {
	mu         sync.Mutex
	values     [][]string
	valuesErrs []error
	documents  map[string]*docs.Document
	docErrs    []error
	updateErrs []error
	metadata   map[string]*DocumentMetadata
	files      map[string][]byte

	ranges  []string
	updates []update
	calls   map[string]int
}

func (f *fakeBackend) record(name string) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

func (f *fakeBackend) GetValues(_ context.Context, _ string, rangeSpec string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("values")
	f.ranges = append(f.ranges, rangeSpec)
	if err := pop(&f.valuesErrs); err != nil {
		return nil, err
	}
	return f.values, nil
}

func (f *fakeBackend) UpdateValues(_ context.Context, _ string, rangeSpec string, row []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update")
	if err := pop(&f.updateErrs); err != nil {
		return err
	}
	f.updates = append(f.updates, update{rangeSpec: rangeSpec, row: row})
	return nil
}

func (f *fakeBackend) GetDocument(_ context.Context, docID string) (*docs.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("document")
	if err := pop(&f.docErrs); err != nil {
		return nil, err
	}
	doc, ok := f.documents[docID]
	if !ok {
		return nil, &googleapi.Error{Code: 404, Message: "Requested entity was not found."}
	}
	return doc, nil
}

func (f *fakeBackend) GetFileMetadata(_ context.Context, fileID string) (*DocumentMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("metadata")
	meta, ok := f.metadata[fileID]
	if !ok {
		return nil, &googleapi.Error{Code: 404}
	}
	return meta, nil
}

func (f *fakeBackend) DownloadFile(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("download")
	data, ok := f.files[fileID]
	if !ok {
		return nil, &googleapi.Error{Code: 404}
	}
	return data, nil
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func noLimits() map[Service]RateLimit {
	return map[Service]RateLimit{ServiceSheets: {}, ServiceDocs: {}, ServiceDrive: {}}
}

func newTestClient(t *testing.T, backend *fakeBackend, mutate func(*Options)) (*Client, *int) {
	t.Helper()
	connects := 0
	connect := func(context.Context) (Backend, error) {
		connects++
		return backend, nil
	}
	opts := Options{
		SpreadsheetID: "sheet-1",
		BaseDelay:     time.Millisecond,
		MaxDelay:      time.Millisecond,
		RateLimits:    noLimits(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClient(connect, opts)
	require.NoError(t, err)
	return c, &connects
}

func paragraph(runs ...string) *docs.StructuralElement {
	p := &docs.Paragraph{}
	for _, r := range runs {
		p.Elements = append(p.Elements, &docs.ParagraphElement{TextRun: &docs.TextRun{Content: r}})
	}
	return &docs.StructuralElement{Paragraph: p}
}

func longDocument() *docs.Document {
	return &docs.Document{Body: &docs.Body{Content: []*docs.StructuralElement{
		paragraph(strings.Repeat("CREATE TABLE users (id INT PRIMARY KEY);\n", 5)),
	}}}
}

func TestReadWorkItems(t *testing.T) {
	backend := &fakeBackend{values: [][]string{
		{"https://docs.google.com/document/d/abc123/edit", "Ada"},
		{},
		{"  xyz789  "},
	}}
	c, _ := newTestClient(t, backend, func(o *Options) {
		o.SheetName = "Grades"
		o.Columns = Columns{DocLink: "a", Label: "b", Score: "c", Feedback: "d"}
	})

	items, err := c.ReadWorkItems(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"'Grades'!A2:B"}, backend.ranges)
	require.Len(t, items, 3)
	assert.Equal(t, 2, items[0].Position)
	assert.Equal(t, "Ada", items[0].Label)
	assert.Equal(t, 3, items[1].Position)
	assert.Empty(t, items[1].Reference)
	assert.Equal(t, "xyz789", items[2].Reference)
	assert.Empty(t, items[2].Label)
}

func TestReadRows_ReconnectsAfterTransportError(t *testing.T) {
	backend := &fakeBackend{
		values:     [][]string{{"a"}},
		valuesErrs: []error{&googleapi.Error{Code: 503, Message: "backend unavailable"}},
	}
	reconnects := 0
	c, connects := newTestClient(t, backend, func(o *Options) {
		o.OnReconnect = func() { reconnects++ }
	})

	rows, err := c.ReadRows(context.Background(), "A2:B")
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a"}}, rows)
	assert.Equal(t, 2, backend.count("values"))
	assert.Equal(t, 2, *connects, "transport error must rebuild the connection")
	assert.Equal(t, 1, reconnects)
}

func TestReadRows_AuthErrorNotRetried(t *testing.T) {
	backend := &fakeBackend{valuesErrs: []error{&googleapi.Error{Code: 401, Message: "invalid credentials"}}}
	c, connects := newTestClient(t, backend, nil)

	_, err := c.ReadRows(context.Background(), "A2:B")
	require.Error(t, err)

	assert.Equal(t, failure.KindAuth, failure.KindOf(err))
	assert.Equal(t, 1, backend.count("values"))
	assert.Equal(t, 1, *connects)
}

func TestReadRows_RateLimitRetriedUpToCap(t *testing.T) {
	var errs []error
	for i := 0; i < ReadAttempts+1; i++ {
		errs = append(errs, &googleapi.Error{Code: 429, Message: "quota"})
	}
	backend := &fakeBackend{valuesErrs: errs}
	var retried []string
	c, _ := newTestClient(t, backend, func(o *Options) {
		o.OnRetry = func(op string, _ int, _ error) { retried = append(retried, op) }
	})

	_, err := c.ReadRows(context.Background(), "A2:B")
	require.Error(t, err)

	assert.True(t, errors.Is(err, failure.RateLimit))
	assert.Equal(t, ReadAttempts, backend.count("values"))
	assert.Len(t, retried, ReadAttempts-1)
	assert.Equal(t, "sheets.read", retried[0])
}

func TestFetchDocumentText(t *testing.T) {
	doc := &docs.Document{Body: &docs.Body{Content: []*docs.StructuralElement{
		paragraph("Title\n"),
		paragraph("   ", "Intro text. "),
		{Table: &docs.Table{TableRows: []*docs.TableRow{{
			TableCells: []*docs.TableCell{
				{Content: []*docs.StructuralElement{paragraph("cell one")}},
				{Content: []*docs.StructuralElement{paragraph("\n"), paragraph("cell two")}},
			},
		}}}},
		paragraph("Outro\n"),
	}}}
	backend := &fakeBackend{documents: map[string]*docs.Document{"doc1": doc}}
	c, _ := newTestClient(t, backend, nil)

	text, err := c.FetchDocumentText(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "Title\nIntro text. cell onecell twoOutro", text)
}

func TestFetchDocumentText_NotFound(t *testing.T) {
	backend := &fakeBackend{documents: map[string]*docs.Document{}}
	c, _ := newTestClient(t, backend, nil)

	_, err := c.FetchDocumentText(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
	assert.Equal(t, 1, backend.count("document"), "not-found is not retried")
}

func TestFetchDocumentText_TransportRetriedThreeTimes(t *testing.T) {
	transport := &googleapi.Error{Code: 502}
	backend := &fakeBackend{
		documents: map[string]*docs.Document{"doc1": longDocument()},
		docErrs:   []error{transport, transport, transport, transport},
	}
	c, _ := newTestClient(t, backend, nil)

	_, err := c.FetchDocumentText(context.Background(), "doc1")
	require.Error(t, err)
	assert.Equal(t, failure.KindTransport, failure.KindOf(err))
	assert.Equal(t, FetchAttempts, backend.count("document"))
}

func TestFetchDocumentText_Cached(t *testing.T) {
	backend := &fakeBackend{documents: map[string]*docs.Document{"doc1": longDocument()}}
	c, _ := newTestClient(t, backend, func(o *Options) { o.CacheSize = 4 })

	first, err := c.FetchDocumentText(context.Background(), "doc1")
	require.NoError(t, err)
	second, err := c.FetchDocumentText(context.Background(), "doc1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.count("document"))
}

func TestFetchDocumentText_DriveFallbackForHTML(t *testing.T) {
	backend := &fakeBackend{
		docErrs: []error{&googleapi.Error{Code: 400, Message: "This operation is not supported for this document"}},
		metadata: map[string]*DocumentMetadata{
			"upload1": {ID: "upload1", Name: "report.html", MimeType: MimeTypeHTML},
		},
		files: map[string][]byte{
			"upload1": []byte(`<html><head><style>p{}</style></head><body><h1>Schema</h1><p>CREATE TABLE t;</p><script>x()</script></body></html>`),
		},
	}
	c, _ := newTestClient(t, backend, func(o *Options) { o.DriveFallback = true })

	text, err := c.FetchDocumentText(context.Background(), "upload1")
	require.NoError(t, err)
	assert.Contains(t, text, "Schema")
	assert.Contains(t, text, "CREATE TABLE t;")
	assert.NotContains(t, text, "x()")
	assert.Equal(t, 1, backend.count("download"))
}

func TestFetchDocumentText_NoFallbackForBinary(t *testing.T) {
	backend := &fakeBackend{
		docErrs:  []error{&googleapi.Error{Code: 400}},
		metadata: map[string]*DocumentMetadata{"pdf1": {ID: "pdf1", MimeType: "application/pdf"}},
	}
	c, _ := newTestClient(t, backend, func(o *Options) { o.DriveFallback = true })

	_, err := c.FetchDocumentText(context.Background(), "pdf1")
	require.Error(t, err)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
	assert.Zero(t, backend.count("download"))
}

func TestWriteResult(t *testing.T) {
	backend := &fakeBackend{}
	c, _ := newTestClient(t, backend, func(o *Options) {
		o.SheetName = "Sheet1"
		o.Columns = Columns{DocLink: "A", Label: "B", Score: "E", Feedback: "F"}
	})

	long := strings.Repeat("x", MaxFeedbackChars+50)
	require.NoError(t, c.WriteResult(context.Background(), 7, "85", long))

	require.Len(t, backend.updates, 1)
	u := backend.updates[0]
	assert.Equal(t, "'Sheet1'!E7:F7", u.rangeSpec)
	assert.Equal(t, "85", u.row[0])
	feedback := u.row[1].(string)
	assert.Len(t, feedback, MaxFeedbackChars)
	assert.True(t, strings.HasSuffix(feedback, "..."))
}

func TestWriteResult_ValidationErrorSwallowed(t *testing.T) {
	backend := &fakeBackend{updateErrs: []error{&googleapi.Error{Code: 400, Message: "Invalid values"}}}
	c, _ := newTestClient(t, backend, nil)

	assert.NoError(t, c.WriteResult(context.Background(), 3, "ERROR", "bad"))
	assert.Equal(t, 1, backend.count("update"))
}

func TestWriteResult_TransportErrorSurfaces(t *testing.T) {
	var errs []error
	for i := 0; i < WriteAttempts; i++ {
		errs = append(errs, errors.New("connection reset by peer"))
	}
	backend := &fakeBackend{updateErrs: errs}
	c, connects := newTestClient(t, backend, nil)

	err := c.WriteResult(context.Background(), 3, "90", "ok")
	require.Error(t, err)
	assert.Equal(t, failure.KindTransport, failure.KindOf(err))
	assert.Equal(t, WriteAttempts, backend.count("update"))
	assert.Equal(t, WriteAttempts, *connects)
}

func TestCall_CancelledContext(t *testing.T) {
	backend := &fakeBackend{valuesErrs: []error{&googleapi.Error{Code: 503}}}
	c, _ := newTestClient(t, backend, func(o *Options) {
		o.BaseDelay = time.Hour
		o.MaxDelay = time.Hour
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := c.ReadRows(ctx, "A2:B")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDocumentMetadata(t *testing.T) {
	created := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	backend := &fakeBackend{metadata: map[string]*DocumentMetadata{
		"doc1": {ID: "doc1", Name: "Project", MimeType: MimeTypeGoogleDoc, CreatedTime: created, Owners: []string{"Ada"}},
	}}
	c, _ := newTestClient(t, backend, nil)

	meta, err := c.DocumentMetadata(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "Project", meta.Name)
	assert.Equal(t, created, meta.CreatedTime)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, Options{SpreadsheetID: "x"})
	assert.Error(t, err)

	_, err = NewClient(func(context.Context) (Backend, error) { return &fakeBackend{}, nil }, Options{})
	assert.ErrorContains(t, err, "spreadsheet ID is required")
}

func TestTruncateFeedback(t *testing.T) {
	assert.Equal(t, "short", TruncateFeedback("short"))
	exact := strings.Repeat("y", MaxFeedbackChars)
	assert.Equal(t, exact, TruncateFeedback(exact))

	over := TruncateFeedback(strings.Repeat("é", MaxFeedbackChars+1))
	assert.Equal(t, MaxFeedbackChars, len([]rune(over)))
	assert.True(t, strings.HasSuffix(over, "..."))
}
