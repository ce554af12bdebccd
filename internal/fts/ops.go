package fts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// listOfFilesRequest is the shared request body for upload, download, and
// delete calls.
type listOfFilesRequest struct {
	ListOfFiles []BatchFile `json:"listOfFiles"`
}

// parListResponse is the shared response shape of intent calls. RawMessage
// fields let shape validation distinguish "absent" from "empty".
type parListResponse struct {
	ParList json.RawMessage `json:"parList"`
}

// listFilesResponse wraps the file listing.
type listFilesResponse struct {
	ResultSet json.RawMessage `json:"resultSet"`
}

// ListPrefixes returns all storage prefixes visible to the customer,
// sorted case-insensitively. A body that is not a plain JSON array of
// strings fails with ErrUnexpectedShape.
func (c *Client) ListPrefixes(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, "listprefixes", http.MethodGet, "/listprefixes", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var prefixes []string
	if err := json.NewDecoder(resp.Body).Decode(&prefixes); err != nil {
		return nil, fmt.Errorf("%w: listprefixes did not return an array of strings", ErrUnexpectedShape)
	}

	slices.SortFunc(prefixes, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})

	c.logger.Info("prefixes listed", "count", len(prefixes))

	return prefixes, nil
}

// ListFiles returns the metadata of every file under the prefix. A body
// without a resultSet array fails with ErrUnexpectedShape.
func (c *Client) ListFiles(ctx context.Context, prefix string) ([]FileRecord, error) {
	path := "/listfiles?prefix=" + url.QueryEscape(prefix)

	resp, err := c.do(ctx, "listfiles", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body listFilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: listfiles response is not an object", ErrUnexpectedShape)
	}

	if body.ResultSet == nil {
		return nil, fmt.Errorf("%w: listfiles response has no resultSet", ErrUnexpectedShape)
	}

	var records []FileRecord
	if err := json.Unmarshal(body.ResultSet, &records); err != nil {
		return nil, fmt.Errorf("%w: resultSet is not an array of file records", ErrUnexpectedShape)
	}

	c.logger.Info("files listed",
		"prefix", prefix,
		"count", len(records),
	)

	return records, nil
}

// RequestUploadIntent declares the files about to be uploaded and returns
// one pre-signed entry per file. A response whose entry count differs from
// the request fails wholesale with ErrIntentCountMismatch — the caller
// must not start any per-file PUT.
func (c *Client) RequestUploadIntent(ctx context.Context, prefix string, fileNames []string) ([]BatchItem, error) {
	items, err := c.requestIntent(ctx, "upload", "/upload", prefix, fileNames)
	if err != nil {
		return nil, err
	}

	if len(items) != len(fileNames) {
		return nil, fmt.Errorf("%w: requested %d, got %d",
			ErrIntentCountMismatch, len(fileNames), len(items))
	}

	return items, nil
}

// RequestDownloadIntent declares the files about to be downloaded and
// returns their pre-signed entries. A missing or empty parList fails with
// ErrUnexpectedShape.
func (c *Client) RequestDownloadIntent(ctx context.Context, prefix string, fileNames []string) ([]BatchItem, error) {
	items, err := c.requestIntent(ctx, "download", "/download", prefix, fileNames)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: download response has no parList entries", ErrUnexpectedShape)
	}

	return items, nil
}

// requestIntent posts a listOfFiles body and decodes the parList response.
func (c *Client) requestIntent(
	ctx context.Context, op, path, prefix string, fileNames []string,
) ([]BatchItem, error) {
	req := listOfFilesRequest{ListOfFiles: make([]BatchFile, 0, len(fileNames))}
	for _, name := range fileNames {
		req.ListOfFiles = append(req.ListOfFiles, BatchFile{StoragePrefix: prefix, FileName: name})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("fts: marshaling %s intent: %w", op, err)
	}

	resp, err := c.do(ctx, op, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed parListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %s response is not an object", ErrUnexpectedShape, op)
	}

	if parsed.ParList == nil {
		return nil, fmt.Errorf("%w: %s response has no parList", ErrUnexpectedShape, op)
	}

	var items []BatchItem
	if err := json.Unmarshal(parsed.ParList, &items); err != nil {
		return nil, fmt.Errorf("%w: parList is not an array of intent entries", ErrUnexpectedShape)
	}

	c.logger.Info("intent resolved",
		"op", op,
		"prefix", prefix,
		"requested", len(fileNames),
		"entries", len(items),
	)

	return items, nil
}

// Delete removes one remote file. The API's payload shape allows multiple
// files, but deletes are issued one file per call; bulk deletion fans out
// per-file in the batch runner instead.
func (c *Client) Delete(ctx context.Context, prefix, fileName string) error {
	req := listOfFilesRequest{
		ListOfFiles: []BatchFile{{StoragePrefix: prefix, FileName: fileName}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("fts: marshaling delete request: %w", err)
	}

	resp, err := c.do(ctx, "delete", http.MethodDelete, "/delete", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("fts: draining delete response: %w", err)
	}

	c.logger.Info("file deleted",
		"prefix", prefix,
		"file", fileName,
	)

	return nil
}

// Move renames a file into another prefix. Moves to the same prefix and
// moves with an empty target are rejected before any network call.
func (c *Client) Move(ctx context.Context, currentPrefix, fileName, newPrefix, newFileName string) error {
	if newPrefix == "" || newFileName == "" {
		return ErrMissingTarget
	}

	if newPrefix == currentPrefix {
		return ErrSamePrefix
	}

	payload := struct {
		ListOfFiles []movePaths `json:"listOfFiles"`
	}{
		ListOfFiles: []movePaths{{
			CurrentPath: BatchFile{StoragePrefix: currentPrefix, FileName: fileName},
			NewPath:     BatchFile{StoragePrefix: newPrefix, FileName: newFileName},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fts: marshaling move request: %w", err)
	}

	resp, err := c.do(ctx, "movefiles", http.MethodPost, "/movefiles", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("fts: draining move response: %w", err)
	}

	c.logger.Info("file moved",
		"from_prefix", currentPrefix,
		"file", fileName,
		"to_prefix", newPrefix,
		"new_name", newFileName,
	)

	return nil
}
