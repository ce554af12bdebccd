package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fts-tools/ftsctl/internal/fts"
)

func sampleFiles() []fts.FileRecord {
	return []fts.FileRecord{
		{Name: "report-10.csv", Size: 10, CreatedDate: "2025-03-01T00:00:00Z", ModifiedDate: "2025-03-05T00:00:00Z", ScanStatus: "Clean"},
		{Name: "Archive.zip", Size: 9, CreatedDate: "2025-01-01T00:00:00Z", ModifiedDate: "2025-06-01T00:00:00Z", ScanStatus: "Pending"},
		{Name: "notes.txt", Size: 200, CreatedDate: "2025-02-01T00:00:00Z", ModifiedDate: "2025-02-01T00:00:00Z", ScanStatus: "Clean"},
	}
}

func TestSortBySizeIsNumeric(t *testing.T) {
	l := NewListing("p", sampleFiles())

	l.SortBy(ColumnSize)

	// 9 sorts before 10, which lexical string order would get wrong.
	assert.Equal(t, []string{"Archive.zip", "report-10.csv", "notes.txt"}, l.Names())
}

func TestSortByToggles(t *testing.T) {
	l := NewListing("p", sampleFiles())

	l.SortBy(ColumnSize)
	ascending := l.Names()

	l.SortBy(ColumnSize)
	descending := l.Names()

	assert.Equal(t, []string{"Archive.zip", "report-10.csv", "notes.txt"}, ascending)
	assert.Equal(t, []string{"notes.txt", "report-10.csv", "Archive.zip"}, descending)

	// Third invocation flips back to ascending.
	l.SortBy(ColumnSize)
	assert.Equal(t, ascending, l.Names())
}

func TestSortByTogglePerColumn(t *testing.T) {
	l := NewListing("p", sampleFiles())

	l.SortBy(ColumnSize)
	l.SortBy(ColumnSize) // size now descending

	// A different column starts ascending regardless of size's state.
	l.SortBy(ColumnName)
	assert.Equal(t, []string{"Archive.zip", "notes.txt", "report-10.csv"}, l.Names())
}

func TestSortByNameIsCaseInsensitive(t *testing.T) {
	l := NewListing("p", []fts.FileRecord{
		{Name: "zebra.txt"},
		{Name: "Apple.txt"},
		{Name: "mango.txt"},
	})

	l.SortBy(ColumnName)

	assert.Equal(t, []string{"Apple.txt", "mango.txt", "zebra.txt"}, l.Names())
}

func TestSortByDates(t *testing.T) {
	l := NewListing("p", sampleFiles())

	l.SortBy(ColumnCreatedDate)
	assert.Equal(t, []string{"Archive.zip", "notes.txt", "report-10.csv"}, l.Names())

	l.SortBy(ColumnModifiedDate)
	assert.Equal(t, []string{"notes.txt", "report-10.csv", "Archive.zip"}, l.Names())
}

func TestSortByMalformedDateSortsFirst(t *testing.T) {
	l := NewListing("p", []fts.FileRecord{
		{Name: "good.txt", CreatedDate: "2025-01-01T00:00:00Z"},
		{Name: "bad.txt", CreatedDate: "not-a-date"},
	})

	l.SortBy(ColumnCreatedDate)
	assert.Equal(t, []string{"bad.txt", "good.txt"}, l.Names())
}

func TestFilter(t *testing.T) {
	l := NewListing("p", sampleFiles())

	matched := l.Filter("ARCHIVE")
	require.Len(t, matched, 1)
	assert.Equal(t, "Archive.zip", matched[0].Name)

	assert.Len(t, l.Filter(""), 3)
	assert.Empty(t, l.Filter("no-such-file"))

	// Filtering never mutates the listing itself.
	assert.Len(t, l.Files, 3)
}

func TestParseColumn(t *testing.T) {
	col, err := ParseColumn("Size")
	require.NoError(t, err)
	assert.Equal(t, ColumnSize, col)

	col, err = ParseColumn("modified_date")
	require.NoError(t, err)
	assert.Equal(t, ColumnModifiedDate, col)

	_, err = ParseColumn("owner")
	assert.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	l := NewListing("p", sampleFiles())

	var buf bytes.Buffer
	require.NoError(t, l.ExportCSV(&buf))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "Name,Size,Created Date,Modified Date,Scan Status", string(lines[0]))
	assert.Equal(t, "report-10.csv,10,2025-03-01T00:00:00Z,2025-03-05T00:00:00Z,Clean", string(lines[1]))
}

func TestExportCSVEmptyListing(t *testing.T) {
	l := NewListing("p", nil)

	var buf bytes.Buffer
	err := l.ExportCSV(&buf)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Zero(t, buf.Len())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "********", MaskSecret("short"))
	assert.Equal(t, "********", MaskSecret(""))

	masked := MaskSecret("super-secret-client-value")
	assert.NotContains(t, masked, "secret-client")
	assert.Equal(t, "supe…alue", masked)
}
