package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/fts-tools/ftsctl/internal/batch"
	"github.com/fts-tools/ftsctl/internal/credstore"
	"github.com/fts-tools/ftsctl/internal/fts"
)

// Operation names as recorded in the transfer log.
const (
	opUpload   = "upload"
	opDownload = "download"
	opDelete   = "delete"
	opMove     = "move"
)

// ItemFailure is one failed file within a batch.
type ItemFailure struct {
	Name string
	Err  error
}

// BatchOutcome aggregates one finished batch. Failures lists only the
// failed items; the summary counts all of them.
type BatchOutcome struct {
	BatchID   string
	Operation string
	Summary   batch.Summary
	Failures  []ItemFailure
}

// Upload transfers the local files at paths into the prefix. The intent
// request must succeed and return exactly one pre-signed entry per file
// before any byte is sent; a count mismatch rejects the whole batch. A
// zero-length file still uploads as an empty body.
func (s *Session) Upload(ctx context.Context, prefix string, paths []string) (*BatchOutcome, error) {
	client, customer, err := s.transferTarget()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]string, len(paths))
	names := make([]string, 0, len(paths))

	for _, p := range paths {
		name := filepath.Base(p)
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate file name %q in upload batch", name)
		}
		byName[name] = p
		names = append(names, name)
	}

	batchID := uuid.NewString()

	items, err := client.RequestUploadIntent(ctx, prefix, names)
	if err != nil {
		s.recordOperationFailure(ctx, batchID, customer, opUpload, prefix, err)
		return nil, err
	}

	results := s.newRunner().Run(ctx, items, func(ctx context.Context, item fts.BatchItem) error {
		path, ok := byName[item.Name]
		if !ok {
			return fmt.Errorf("no local file for intent entry %q", item.Name)
		}
		return s.uploadOne(ctx, client, item, path)
	})

	return s.finishBatch(ctx, batchID, customer, opUpload, prefix, results), nil
}

func (s *Session) uploadOne(ctx context.Context, client *fts.Client, item fts.BatchItem, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	return client.PutURI(ctx, item.AccessURI, f, info.Size())
}

// Download fetches the named remote files into destDir, one local file
// per intent entry.
func (s *Session) Download(ctx context.Context, prefix string, names []string, destDir string) (*BatchOutcome, error) {
	client, customer, err := s.transferTarget()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}

	batchID := uuid.NewString()

	items, err := client.RequestDownloadIntent(ctx, prefix, names)
	if err != nil {
		s.recordOperationFailure(ctx, batchID, customer, opDownload, prefix, err)
		return nil, err
	}

	results := s.newRunner().Run(ctx, items, func(ctx context.Context, item fts.BatchItem) error {
		return s.downloadOne(ctx, client, item, filepath.Join(destDir, filepath.Base(item.Name)))
	})

	return s.finishBatch(ctx, batchID, customer, opDownload, prefix, results), nil
}

func (s *Session) downloadOne(ctx context.Context, client *fts.Client, item fts.BatchItem, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	if _, err := client.GetURI(ctx, item.AccessURI, f); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}

	return f.Close()
}

// DeleteFiles removes the named remote files, one DELETE call per file
// through the worker pool. One file's failure never stops the others.
func (s *Session) DeleteFiles(ctx context.Context, prefix string, names []string) (*BatchOutcome, error) {
	client, customer, err := s.transferTarget()
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()

	items := make([]fts.BatchItem, 0, len(names))
	for _, name := range names {
		items = append(items, fts.BatchItem{Name: name})
	}

	results := s.newRunner().Run(ctx, items, func(ctx context.Context, item fts.BatchItem) error {
		return client.Delete(ctx, prefix, item.Name)
	})

	return s.finishBatch(ctx, batchID, customer, opDelete, prefix, results), nil
}

// Move renames one remote file into another prefix, recording the outcome.
func (s *Session) Move(ctx context.Context, currentPrefix, fileName, newPrefix, newFileName string) error {
	client, customer, err := s.transferTarget()
	if err != nil {
		return err
	}

	moveErr := client.Move(ctx, currentPrefix, fileName, newPrefix, newFileName)

	if err := s.log.RecordOutcome(ctx, "", customer, opMove, currentPrefix, fileName, moveErr); err != nil {
		s.logger.Error("recording move outcome failed", "error", err)
	}

	return moveErr
}

// transferTarget returns the client and customer name, requiring both a
// selected customer and a complete profile.
func (s *Session) transferTarget() (*fts.Client, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil || s.profile == nil {
		return nil, "", fmt.Errorf("no customer selected")
	}

	if !s.profile.Complete() {
		return nil, "", &credstore.ValidationError{Name: s.profile.Name, Missing: s.profile.MissingFields()}
	}

	return s.client, s.profile.Name, nil
}

func (s *Session) newRunner() *batch.Runner[fts.BatchItem] {
	return batch.New[fts.BatchItem](s.workers, s.logger).
		WithDescriber(func(item fts.BatchItem) string { return item.Name })
}

// finishBatch records every per-item outcome and builds the aggregate.
func (s *Session) finishBatch(
	ctx context.Context, batchID, customer, operation, prefix string, results []batch.Result[fts.BatchItem],
) *BatchOutcome {
	outcome := &BatchOutcome{
		BatchID:   batchID,
		Operation: operation,
		Summary:   batch.Summarize(results),
	}

	for _, res := range results {
		if err := s.log.RecordOutcome(ctx, batchID, customer, operation, prefix, res.Item.Name, res.Err); err != nil {
			s.logger.Error("recording batch outcome failed",
				"batch_id", batchID,
				"file", res.Item.Name,
				"error", err,
			)
		}

		if res.Err != nil {
			outcome.Failures = append(outcome.Failures, ItemFailure{Name: res.Item.Name, Err: res.Err})
		}
	}

	s.logger.Info("batch finished",
		"batch_id", batchID,
		"op", operation,
		"prefix", prefix,
		"succeeded", outcome.Summary.Succeeded,
		"failed", outcome.Summary.Failed,
	)

	return outcome
}

// recordOperationFailure logs an operation-level failure (intent or token)
// that aborted the batch before any per-file work.
func (s *Session) recordOperationFailure(ctx context.Context, batchID, customer, operation, prefix string, opErr error) {
	if err := s.log.RecordOutcome(ctx, batchID, customer, operation, prefix, "", opErr); err != nil {
		s.logger.Error("recording operation failure failed",
			"batch_id", batchID,
			"op", operation,
			"error", err,
		)
	}
}
