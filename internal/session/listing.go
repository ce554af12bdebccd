package session

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/fts-tools/ftsctl/internal/fts"
)

// Column identifies a sortable file-listing column.
type Column string

const (
	ColumnName         Column = "name"
	ColumnSize         Column = "size"
	ColumnCreatedDate  Column = "created"
	ColumnModifiedDate Column = "modified"
	ColumnScanStatus   Column = "status"
)

// ErrNoData means an export was requested for an empty listing.
var ErrNoData = errors.New("session: no file data to export")

// ParseColumn maps a user-supplied column name to a Column.
func ParseColumn(s string) (Column, error) {
	switch strings.ToLower(s) {
	case "name":
		return ColumnName, nil
	case "size":
		return ColumnSize, nil
	case "created", "createddate", "created_date":
		return ColumnCreatedDate, nil
	case "modified", "modifieddate", "modified_date":
		return ColumnModifiedDate, nil
	case "status", "scanstatus", "scan_status":
		return ColumnScanStatus, nil
	default:
		return "", fmt.Errorf("session: unknown sort column %q", s)
	}
}

// Listing is the ordered snapshot of one prefix's files, with per-column
// sort direction state. Re-fetched wholesale on every refresh; sorting and
// filtering never go back to the network.
type Listing struct {
	Prefix string
	Files  []fts.FileRecord

	// descending tracks the direction the next sort on each column will
	// use: first sort ascending, repeat sorts flip.
	descending map[Column]bool
}

// NewListing wraps a fetched listing.
func NewListing(prefix string, files []fts.FileRecord) *Listing {
	return &Listing{
		Prefix:     prefix,
		Files:      files,
		descending: make(map[Column]bool),
	}
}

// SortBy orders the listing by the column, toggling between ascending and
// descending on repeated invocations per column. Sizes compare
// numerically; dates parse per the API's fixed layout; name and scan
// status compare case-insensitively.
func (l *Listing) SortBy(col Column) {
	desc := l.descending[col]
	l.descending[col] = !desc

	cmp := columnComparator(col)

	slices.SortStableFunc(l.Files, func(a, b fts.FileRecord) int {
		c := cmp(a, b)
		if desc {
			return -c
		}
		return c
	})
}

func columnComparator(col Column) func(a, b fts.FileRecord) int {
	switch col {
	case ColumnSize:
		return func(a, b fts.FileRecord) int {
			switch {
			case a.Size < b.Size:
				return -1
			case a.Size > b.Size:
				return 1
			default:
				return 0
			}
		}
	case ColumnCreatedDate:
		return func(a, b fts.FileRecord) int {
			return parseDate(a.CreatedDate).Compare(parseDate(b.CreatedDate))
		}
	case ColumnModifiedDate:
		return func(a, b fts.FileRecord) int {
			return parseDate(a.ModifiedDate).Compare(parseDate(b.ModifiedDate))
		}
	case ColumnScanStatus:
		return func(a, b fts.FileRecord) int {
			return strings.Compare(strings.ToLower(a.ScanStatus), strings.ToLower(b.ScanStatus))
		}
	default:
		return func(a, b fts.FileRecord) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	}
}

// parseDate interprets an API timestamp, mapping missing or malformed
// values to the epoch so they sort first rather than failing the sort.
func parseDate(s string) time.Time {
	t, err := time.Parse(fts.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Filter returns the files whose name contains the text,
// case-insensitively. An empty filter returns the full listing. The
// underlying order is preserved and the listing itself is not modified.
func (l *Listing) Filter(text string) []fts.FileRecord {
	if text == "" {
		return l.Files
	}

	needle := strings.ToLower(text)

	var matched []fts.FileRecord
	for _, f := range l.Files {
		if strings.Contains(strings.ToLower(f.Name), needle) {
			matched = append(matched, f)
		}
	}

	return matched
}

// Names returns the file names in listing order.
func (l *Listing) Names() []string {
	names := make([]string, 0, len(l.Files))
	for _, f := range l.Files {
		names = append(names, f.Name)
	}
	return names
}

// ExportCSV writes the listing as CSV in display order. An empty listing
// is an error so the caller can tell the operator nothing was written.
func (l *Listing) ExportCSV(w io.Writer) error {
	if len(l.Files) == 0 {
		return ErrNoData
	}

	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Name", "Size", "Created Date", "Modified Date", "Scan Status"}); err != nil {
		return fmt.Errorf("session: writing CSV header: %w", err)
	}

	for _, f := range l.Files {
		record := []string{
			f.Name,
			fmt.Sprintf("%d", f.Size),
			f.CreatedDate,
			f.ModifiedDate,
			f.ScanStatus,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("session: writing CSV row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}
