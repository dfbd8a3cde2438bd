package task

import (
	"context"
	"errors"
	"fmt"
)

// ReleaseUploads clears every upload referenced by t's configuration and
// persists the blanked references. Tasks without uploads are left untouched,
// so calling it again on an already released task does nothing.
func ReleaseUploads(ctx context.Context, t *Task, uploads UploadStore, store TaskStore) error {
	var errs []error
	released := false

	for i := range t.Configuration {
		entry := &t.Configuration[i]
		if !entry.HasUpload() {
			continue
		}
		if uploads != nil {
			if err := uploads.Clear(ctx, entry.ID); err != nil {
				errs = append(errs, fmt.Errorf("entry %s: %w", entry.Key, err))
				continue
			}
		}
		entry.UploadRef = ""
		released = true
	}

	if released {
		if err := store.Update(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist released uploads: %w", err))
		}
	}

	return errors.Join(errs...)
}

// discardUploads clears the payloads of t without persisting the task, for
// tasks that no longer exist in the store.
func discardUploads(ctx context.Context, t *Task, uploads UploadStore) error {
	if uploads == nil {
		return nil
	}
	var errs []error
	for _, entry := range t.Configuration {
		if !entry.HasUpload() {
			continue
		}
		if err := uploads.Clear(ctx, entry.ID); err != nil {
			errs = append(errs, fmt.Errorf("entry %s: %w", entry.Key, err))
		}
	}
	return errors.Join(errs...)
}
