package sheet

import (
	"context"
	"os"
)

// FileSource reads the sheet from a local CSV snapshot.
//
// This is the offline source: a CSV export dropped next to the database is
// synced exactly like the remote sheet, and the daemon can watch the file
// for changes.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading the CSV file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the snapshot file path, for the daemon's file watcher.
func (s *FileSource) Path() string { return s.path }

// FetchRows implements Source.
func (s *FileSource) FetchRows(ctx context.Context) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}
	defer f.Close()

	return parseCSV(f)
}
