// Package sheet provides access to the remote issue spreadsheet.
//
// The spreadsheet is treated as a capability: something that can return the
// current rows as a sequence of header→value mappings. Two sources are
// provided: HTTPSource fetches a published CSV export over the network, and
// FileSource reads a local CSV snapshot (useful offline and in tests).
// Neither source retries; retry policy belongs to the sync orchestrator.
package sheet

import (
	"context"
	"errors"
	"fmt"
)

// Row is one raw spreadsheet row. Values maps column header to the cell
// text exactly as fetched; Index is the 1-based data row number (excluding
// the header row) so rejections can point back at the sheet.
type Row struct {
	Index  int
	Values map[string]string
}

// Source fetches the current full snapshot of the remote sheet.
//
// FetchRows returns every data row, in sheet order. It fails with a
// *FetchError on auth, network, or rate-limit problems; it never partially
// succeeds.
type Source interface {
	FetchRows(ctx context.Context) ([]Row, error)
}

// FetchErrorKind classifies why a fetch failed.
type FetchErrorKind string

const (
	FetchAuth      FetchErrorKind = "auth"
	FetchNetwork   FetchErrorKind = "network"
	FetchRateLimit FetchErrorKind = "ratelimit"
	FetchFormat    FetchErrorKind = "format"
)

// FetchError is returned when the remote snapshot could not be retrieved.
// The orchestrator records the Kind in sync run metadata.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AsFetchError unwraps err into a *FetchError if there is one in its chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
