package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Scopes requested for the service account.
var Scopes = []string{
	sheets.SpreadsheetsScope,
	docs.DocumentsReadonlyScope,
	drive.DriveReadonlyScope,
}

// MaxDownloadSize caps the bytes read from a Drive download.
const MaxDownloadSize = 5 * 1024 * 1024

const metadataFields = "id,name,mimeType,modifiedTime,createdTime,owners(displayName,emailAddress)"

// GoogleBackend implements Backend over the Sheets, Docs and Drive APIs.
type GoogleBackend struct {
	sheets *sheets.Service
	docs   *docs.Service
	drive  *drive.Service
}

// NewGoogleBackend creates the three API services with the same client options.
func NewGoogleBackend(ctx context.Context, opts ...option.ClientOption) (*GoogleBackend, error) {
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	docsSvc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docs service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &GoogleBackend{sheets: sheetsSvc, docs: docsSvc, drive: driveSvc}, nil
}

// ServiceAccountConnector returns a Connector that authenticates with service-account JSON.
// Extra options are appended after the credentials.
func ServiceAccountConnector(credentialsJSON []byte, extra ...option.ClientOption) Connector {
	return func(ctx context.Context) (Backend, error) {
		creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
		}
		opts := append([]option.ClientOption{option.WithCredentials(creds)}, extra...)
		return NewGoogleBackend(ctx, opts...)
	}
}

// LoadCredentialsJSON returns the inline JSON when set, otherwise the contents of path.
func LoadCredentialsJSON(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file %s: %w", path, err)
	}
	return data, nil
}

// GetValues implements Backend.
func (b *GoogleBackend) GetValues(ctx context.Context, spreadsheetID, rangeSpec string) ([][]string, error) {
	resp, err := b.sheets.Spreadsheets.Values.Get(spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}
		rows[i] = cells
	}
	return rows, nil
}

// UpdateValues implements Backend.
func (b *GoogleBackend) UpdateValues(ctx context.Context, spreadsheetID, rangeSpec string, row []any) error {
	body := &sheets.ValueRange{Values: [][]any{row}}
	_, err := b.sheets.Spreadsheets.Values.Update(spreadsheetID, rangeSpec, body).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// GetDocument implements Backend.
func (b *GoogleBackend) GetDocument(ctx context.Context, docID string) (*docs.Document, error) {
	return b.docs.Documents.Get(docID).Context(ctx).Do()
}

// GetFileMetadata implements Backend.
func (b *GoogleBackend) GetFileMetadata(ctx context.Context, fileID string) (*DocumentMetadata, error) {
	f, err := b.drive.Files.Get(fileID).Fields(metadataFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	meta := &DocumentMetadata{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		ModifiedTime: parseDriveTime(f.ModifiedTime),
		CreatedTime:  parseDriveTime(f.CreatedTime),
	}
	for _, owner := range f.Owners {
		name := owner.DisplayName
		if name == "" {
			name = owner.EmailAddress
		}
		meta.Owners = append(meta.Owners, name)
	}
	return meta, nil
}

// DownloadFile implements Backend.
func (b *GoogleBackend) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := b.drive.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
}

func parseDriveTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
