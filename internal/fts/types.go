package fts

// DateLayout is the fixed timestamp format the API uses for file dates.
// Kept as strings on the wire type; parsed only where ordering matters.
const DateLayout = "2006-01-02T15:04:05Z"

// FileRecord is one remote file's metadata, an immutable snapshot of
// server state at listing time. Listings are re-fetched wholesale; there
// is no incremental diff.
type FileRecord struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	CreatedDate  string `json:"createdDate"`
	ModifiedDate string `json:"modifiedDate"`
	ScanStatus   string `json:"scanStatus"`
}

// BatchFile addresses one file within a prefix, as the API's listOfFiles
// entries expect it.
type BatchFile struct {
	StoragePrefix string `json:"storagePrefix"`
	FileName      string `json:"fileName"`
}

// BatchItem is one file within a bulk transfer, carrying the pre-signed
// URI resolved by the intent call. Each item is consumed exactly once by a
// per-item worker; its outcome is independent of its siblings.
type BatchItem struct {
	Name      string `json:"name"`
	AccessURI string `json:"accessUri"`
}

// movePaths is the wire shape of one movefiles entry.
type movePaths struct {
	CurrentPath BatchFile `json:"currentPath"`
	NewPath     BatchFile `json:"newPath"`
}
