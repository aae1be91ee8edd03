package engine

import (
	"context"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
)

// resolve looks path up in the index and reports whether the container knows
// it. Resolution failures (unavailable index, malformed entry) surface as
// classified errors; a clean miss returns (false, nil).
func (e *Engine) resolve(ctx context.Context, path string) (bool, error) {
	entries, err := e.view.Snapshot(ctx, index.Query{Path: path})
	if err != nil {
		return false, Classify(path, AccessNeutral, err)
	}

	for _, raw := range entries {
		item, derr := index.Decode(raw)
		if derr != nil {
			continue
		}
		if item.Path == path {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes path from the container. The source is resolved through the
// index first, so deleting something the container never knew about reports
// NotFound instead of depending on backend-specific missing-file behavior.
func (e *Engine) Delete(ctx context.Context, path string) error {
	if err := remote.ValidatePath(path); err != nil {
		return Classify(path, AccessNeutral, err)
	}

	known, err := e.resolve(ctx, path)
	if err != nil {
		return err
	}
	if !known {
		return Classify(path, AccessNeutral, remote.ErrNotFound)
	}

	if rerr := e.coord.Remove(ctx, path); rerr != nil {
		return Classify(path, AccessNeutral, rerr)
	}
	return nil
}

// Move renames src to dst within the container.
func (e *Engine) Move(ctx context.Context, src, dst string) error {
	if err := remote.ValidatePath(src); err != nil {
		return Classify(src, AccessNeutral, err)
	}
	if err := remote.ValidatePath(dst); err != nil {
		return Classify(dst, AccessNeutral, err)
	}

	known, err := e.resolve(ctx, src)
	if err != nil {
		return err
	}
	if !known {
		return Classify(src, AccessNeutral, remote.ErrNotFound)
	}

	if rerr := e.coord.Rename(ctx, src, dst); rerr != nil {
		return Classify(src, AccessNeutral, rerr)
	}
	return nil
}

// Copy duplicates src at dst within the container.
func (e *Engine) Copy(ctx context.Context, src, dst string) error {
	if err := remote.ValidatePath(src); err != nil {
		return Classify(src, AccessNeutral, err)
	}
	if err := remote.ValidatePath(dst); err != nil {
		return Classify(dst, AccessNeutral, err)
	}

	known, err := e.resolve(ctx, src)
	if err != nil {
		return err
	}
	if !known {
		return Classify(src, AccessNeutral, remote.ErrNotFound)
	}

	if rerr := e.coord.Copy(ctx, src, dst); rerr != nil {
		return Classify(src, AccessNeutral, rerr)
	}
	return nil
}

// Exists reports whether path is locally materialized right now.
//
// This is a statement about local availability only: false does not mean the
// container has no such file, merely that its bytes are not on disk at this
// moment. Use Gather to ask what the container knows about.
func (e *Engine) Exists(ctx context.Context, path string) (bool, error) {
	if err := remote.ValidatePath(path); err != nil {
		return false, Classify(path, AccessNeutral, err)
	}

	ok, err := e.coord.Exists(ctx, path)
	if err != nil {
		return false, Classify(path, AccessNeutral, err)
	}
	return ok, nil
}
