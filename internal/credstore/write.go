package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File and directory permissions. The credential file holds ciphertext,
// but the section names and endpoints are still customer-identifying, so
// it stays owner-only.
const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// sectionHeaderPrefix starts every section header line. Headers are always
// written quoted so customer names may contain spaces and dots.
const sectionHeaderPrefix = `["`

// keyValue is one key assignment inside a section. Order is preserved on
// write so repeated saves produce stable files.
type keyValue struct {
	key   string
	value string
}

// sectionHeader formats the header line for a named section.
func sectionHeader(name string) string {
	return fmt.Sprintf("[%q]", name)
}

// findSectionHeader locates a section header line. Returns the header index
// and the content start (header + 1), or -1/-1 when absent.
func findSectionHeader(lines []string, name string) (int, int) {
	header := sectionHeader(name)

	for i, line := range lines {
		if strings.TrimSpace(line) == header {
			return i, i + 1
		}
	}

	return -1, -1
}

// findSectionEnd returns the index of the first line after the section's own
// content. Blank lines and comments preceding the next header belong to the
// next section's preamble, not this section.
func findSectionEnd(lines []string, sectionStart int) int {
	nextHeader := len(lines)

	for i := sectionStart; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), sectionHeaderPrefix) {
			nextHeader = i

			break
		}
	}

	end := nextHeader
	for end > sectionStart {
		trimmed := strings.TrimSpace(lines[end-1])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			end--

			continue
		}

		break
	}

	return end
}

// upsertSection merges the given key/value pairs into a named section,
// replacing existing key lines in place and appending new keys at the
// section's end. A missing section is appended to the file. Lines belonging
// to other sections are never touched — a save is a non-destructive upsert
// across the whole store.
func upsertSection(lines []string, name string, kvs []keyValue) []string {
	headerLine, sectionStart := findSectionHeader(lines, name)

	if headerLine < 0 {
		// New section at the end with a separating blank line.
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
			lines = append(lines, "")
		}

		lines = append(lines, sectionHeader(name))
		for _, kv := range kvs {
			lines = append(lines, formatKeyLine(kv))
		}

		return lines
	}

	for _, kv := range kvs {
		lines = setKeyInSection(lines, headerLine, sectionStart, kv)
	}

	return lines
}

// setKeyInSection replaces an existing key line or inserts a new one at the
// end of the section's content.
func setKeyInSection(lines []string, headerLine, sectionStart int, kv keyValue) []string {
	sectionEnd := findSectionEnd(lines, sectionStart)
	newLine := formatKeyLine(kv)
	keyPrefix := kv.key + " "
	keyPrefixEq := kv.key + "="

	for i := headerLine + 1; i < sectionEnd; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, keyPrefix) || strings.HasPrefix(trimmed, keyPrefixEq) {
			lines[i] = newLine

			return lines
		}
	}

	inserted := make([]string, 0, len(lines)+1)
	inserted = append(inserted, lines[:sectionEnd]...)
	inserted = append(inserted, newLine)
	inserted = append(inserted, lines[sectionEnd:]...)

	return inserted
}

// removeSection deletes a section header, its keys, and any blank lines
// immediately preceding the header. Returns the new lines and whether the
// section was found.
func removeSection(lines []string, name string) ([]string, bool) {
	headerLine, sectionStart := findSectionHeader(lines, name)
	if headerLine < 0 {
		return lines, false
	}

	sectionEnd := findSectionEnd(lines, sectionStart)

	blankStart := headerLine
	for blankStart > 0 && strings.TrimSpace(lines[blankStart-1]) == "" {
		blankStart--
	}

	return append(lines[:blankStart], lines[sectionEnd:]...), true
}

// formatKeyLine renders a TOML key assignment. All credential values are
// strings, so everything is quoted.
func formatKeyLine(kv keyValue) string {
	return fmt.Sprintf("%s = %q", kv.key, kv.value)
}

// atomicWriteFile writes data to a temp file in the target directory, then
// renames it into place so a crash never leaves a half-written credential
// file. Parent directories are created as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, filePerms); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
