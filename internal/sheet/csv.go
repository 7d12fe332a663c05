package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// parseCSV reads a CSV document whose first record is the header row and
// returns the remaining records as Rows. Short records are padded with
// empty cells; columns beyond the header are dropped.
func parseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // the sheet export pads rows unevenly

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &FetchError{Kind: FetchFormat, Err: fmt.Errorf("empty document")}
	}
	if err != nil {
		return nil, &FetchError{Kind: FetchFormat, Err: fmt.Errorf("failed to read header: %w", err)}
	}

	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var rows []Row
	index := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FetchError{Kind: FetchFormat, Err: fmt.Errorf("failed to read row %d: %w", index+1, err)}
		}

		index++
		values := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(rec) {
				values[h] = rec[i]
			} else {
				values[h] = ""
			}
		}
		rows = append(rows, Row{Index: index, Values: values})
	}

	return rows, nil
}
