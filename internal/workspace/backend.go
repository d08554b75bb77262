// Package workspace reads work items from a Google Sheet, fetches Google Doc text and writes
// grading results back. Remote calls are rate limited, bounded by a per-call timeout and
// retried by failure class; a transport failure drops the shared connection so the next
// attempt rebuilds it.
package workspace

import (
	"context"
	"time"

	"google.golang.org/api/docs/v1"
)

// Backend is the set of remote calls the client makes. GoogleBackend is the production
// implementation; tests substitute fakes.
type Backend interface {
	// GetValues returns the cell values of rangeSpec as strings.
	GetValues(ctx context.Context, spreadsheetID, rangeSpec string) ([][]string, error)
	// UpdateValues writes one row of values into rangeSpec with RAW input.
	UpdateValues(ctx context.Context, spreadsheetID, rangeSpec string, row []any) error
	// GetDocument returns the structured Google Doc.
	GetDocument(ctx context.Context, docID string) (*docs.Document, error)
	// GetFileMetadata returns Drive metadata for a file.
	GetFileMetadata(ctx context.Context, fileID string) (*DocumentMetadata, error)
	// DownloadFile returns the raw bytes of a non-Google-native Drive file.
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Connector builds a Backend. It is called lazily and again after each transport failure.
type Connector func(ctx context.Context) (Backend, error)

// DocumentMetadata is the Drive file information used for logging and fetch strategy.
type DocumentMetadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	ModifiedTime time.Time `json:"modified_time"`
	CreatedTime  time.Time `json:"created_time"`
	Owners       []string  `json:"owners,omitempty"`
}

// Drive MIME types.
const (
	MimeTypeGoogleDoc = "application/vnd.google-apps.document"
	MimeTypeHTML      = "text/html"
)
