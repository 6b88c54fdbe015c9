package port

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrExportNotFound is returned when a named export does not exist
	ErrExportNotFound = errors.New("export not found")

	// ErrInvalidExportName is returned for names that escape the export directory
	ErrInvalidExportName = errors.New("invalid export name")
)

// ExportFile describes a saved export
type ExportFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ExportStore keeps generated audit workbooks
type ExportStore interface {
	Save(ctx context.Context, name string, write func(w io.Writer) error) (path string, err error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]ExportFile, error)
	Delete(ctx context.Context, name string) error
}
