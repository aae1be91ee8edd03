// Package fs implements the coordinated-access primitive over a local
// directory tree (the container mirror).
//
// Reads open the mirror file directly. Writes are conflict-safe through a
// temp-file-then-rename commit: a partially written item is never observable
// under its final path. Fetch and push requests resolve against the mirror
// itself - with no remote behind it, a locally present item materializes
// immediately and a locally absent one never does.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
)

// StatusPublisher receives item state transitions caused by fetch and push
// requests. Usually the live metadata index.
type StatusPublisher interface {
	SetItem(item index.Item)
}

// Store is a local-directory implementation of remote.Coordinator.
type Store struct {
	root string
	pub  StatusPublisher
}

// New creates a coordinator rooted at dir, creating it if necessary.
// pub may be nil when no index should observe fetch/push transitions.
func New(dir string, pub StatusPublisher) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create container root: %w", err)
	}
	return &Store{root: dir, pub: pub}, nil
}

// Root returns the mirror root directory.
func (s *Store) Root() string {
	return s.root
}

// Open performs a coordinated open of path.
//
// Read mode maps a missing file to remote.ErrNotFound so the engine can
// classify genuine absence. Write mode requires the parent directory to
// exist; a missing parent is the write-side not-found cause.
func (s *Store) Open(ctx context.Context, path string, mode remote.Mode) (remote.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	if mode == remote.ModeRead {
		f, err := os.Open(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("item %s: %w", path, remote.ErrNotFound)
			}
			return nil, fmt.Errorf("failed to open item for read: %w", err)
		}
		return readFile{f}, nil
	}

	if _, err := os.Stat(filepath.Dir(full)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("parent of %s: %w", path, remote.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), filepath.Base(full)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	return &writeFile{f: tmp, tmpPath: tmp.Name(), finalPath: full}, nil
}

// RequestFetch resolves a fetch against the mirror. A locally present item is
// published as current immediately; an absent one is left untouched - there
// is no remote to pull from, and the idle watchdog will time the operation
// out as designed.
func (s *Store) RequestFetch(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat item: %w", err)
	}

	if s.pub != nil {
		size := info.Size()
		mod := info.ModTime()
		s.pub.SetItem(index.Item{
			Path:           path,
			IsDirectory:    info.IsDir(),
			SizeBytes:      &size,
			ModifiedAt:     &mod,
			DownloadStatus: index.StatusCurrent,
		})
	}
	return nil
}

// RequestPush marks a locally present item as uploaded. The mirror is its
// own remote, so a completed local write is a completed push.
func (s *Store) RequestPush(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("item %s: %w", path, remote.ErrNotFound)
		}
		return fmt.Errorf("failed to stat item: %w", err)
	}

	if s.pub != nil {
		size := info.Size()
		mod := info.ModTime()
		s.pub.SetItem(index.Item{
			Path:           path,
			SizeBytes:      &size,
			ModifiedAt:     &mod,
			DownloadStatus: index.StatusCurrent,
			IsUploaded:     true,
		})
	}
	return nil
}

// Exists reports local availability only.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check item existence: %w", err)
	}
	return true, nil
}

// Remove deletes the item. Non-empty directories fail with the underlying
// cause; emptiness checks belong to the caller.
func (s *Store) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("item %s: %w", path, remote.ErrNotFound)
		}
		return fmt.Errorf("failed to remove item: %w", err)
	}
	return nil
}

// Rename moves an item within the container.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := s.resolve(from)
	if err != nil {
		return err
	}
	dst, err := s.resolve(to)
	if err != nil {
		return err
	}

	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("item %s: %w", from, remote.ErrNotFound)
		}
		return fmt.Errorf("failed to rename item: %w", err)
	}
	return nil
}

// Copy duplicates an item. The destination is committed atomically.
func (s *Store) Copy(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := s.Open(ctx, from, remote.ModeRead)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := s.Open(ctx, to, remote.ModeWrite)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy item content: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to commit copied item: %w", err)
	}
	return nil
}

func (s *Store) resolve(path string) (string, error) {
	if err := remote.ValidatePath(path); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(path)), nil
}

// readFile adapts an *os.File opened for read to remote.File.
type readFile struct {
	*os.File
}

// Write on a read handle is a programming error surfaced at runtime.
func (readFile) Write([]byte) (int, error) {
	return 0, fmt.Errorf("write on read handle: %w", os.ErrInvalid)
}

// writeFile is a write handle committing via temp-file-then-rename.
type writeFile struct {
	f         *os.File
	tmpPath   string
	finalPath string
}

func (w *writeFile) Read([]byte) (int, error) {
	return 0, fmt.Errorf("read on write handle: %w", os.ErrInvalid)
}

func (w *writeFile) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Close commits the write: fsync, close, atomic rename over the final path.
// Any failure leaves the previous item content untouched.
func (w *writeFile) Close() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to sync item content: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to commit item: %w", err)
	}
	return nil
}
