package mutation

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/HendryAvila/tanagraph/internal/apperr"
)

// SourceStore reads and replaces whole source documents.
type SourceStore interface {
	Read(ctx context.Context, source string) ([]byte, error)
	Write(ctx context.Context, source string, data []byte) error
}

// FileSource stores source documents as files. Writes go through a
// temporary file and a rename, so readers see either the old document or
// the new one.
type FileSource struct{}

// NewFileSource creates a filesystem source store.
func NewFileSource() *FileSource {
	return &FileSource{}
}

// Read returns the document bytes.
func (FileSource) Read(_ context.Context, source string) ([]byte, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.SourceNotFound, err, "source %s not found", source).
				WithRemedy("check the source path")
		}
		return nil, fmt.Errorf("reading source %s: %w", source, err)
	}
	return data, nil
}

// Write atomically replaces the document.
func (FileSource) Write(_ context.Context, source string, data []byte) error {
	if err := atomic.WriteFile(source, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing source %s: %w", source, err)
	}
	return nil
}
