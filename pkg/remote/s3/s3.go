// Package s3 implements the coordinated-access primitive against an S3 (or
// S3-compatible) remote with a local mirror directory.
//
// Coordinated opens always resolve against the mirror: local readability is
// the authoritative signal the engine relies on. Fetch and push requests run
// asynchronously, streaming objects between the remote and the mirror and
// publishing every observable state transition (progress fractions, status
// changes, upload flags) into the metadata index.
//
// Path-Based Key Design:
//   - Object keys are the container-relative item paths, below an optional
//     key prefix (e.g. "drive/docs/report.pdf")
//   - The bucket mirrors the container structure, so the catalog can be
//     reconstructed from a plain bucket listing
package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
	"github.com/marmos91/dittosync/pkg/remote/fs"
	"github.com/marmos91/dittosync/pkg/retry"
)

// StatusPublisher receives the item state transitions a transfer produces.
// Usually the live metadata index.
type StatusPublisher interface {
	SetItem(item index.Item)
	Remove(path string)
}

// Store implements remote.Coordinator over an S3 bucket plus a local mirror.
//
// Thread safety: safe for concurrent use. Concurrent fetches of the same
// path are allowed; the mirror's atomic commit makes the last one win.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	mirror    *fs.Store
	pub       StatusPublisher
	backoff   retry.Backoff
	attempts  int
}

// Config contains the settings for an S3-backed coordinator.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the bucket holding the container objects. Must exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	KeyPrefix string

	// MirrorDir is the local mirror root.
	MirrorDir string

	// Publisher receives item state transitions. Must not be nil: without an
	// index to publish into, no transfer can ever complete.
	Publisher StatusPublisher

	// Backoff and MaxAttempts bound retries of transient S3 request
	// failures inside a single fetch or push.
	Backoff     retry.Backoff
	MaxAttempts int
}

// New creates an S3-backed coordinator and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("s3 coordinator requires a status publisher")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff == (retry.Backoff{}) {
		cfg.Backoff = retry.Default()
	}

	mirror, err := fs.New(cfg.MirrorDir, nil)
	if err != nil {
		return nil, err
	}

	store := &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		mirror:    mirror,
		pub:       cfg.Publisher,
		backoff:   cfg.Backoff,
		attempts:  cfg.MaxAttempts,
	}

	if _, err := store.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("bucket %s: %w", cfg.Bucket, remote.ErrUnavailable)
	}

	return store, nil
}

// Open delegates to the local mirror. An item whose bytes have not been
// fetched yet genuinely is not locally readable, whatever the index says.
func (s *Store) Open(ctx context.Context, path string, mode remote.Mode) (remote.File, error) {
	return s.mirror.Open(ctx, path, mode)
}

// Exists reports local availability only; see remote.Coordinator.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	return s.mirror.Exists(ctx, path)
}

// Remove deletes the remote object, the mirror copy, and the index entry.
// A mirror copy that never existed (remote-only item) is not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	if err := remote.ValidatePath(path); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
	})
	if err != nil {
		return mapError(path, err)
	}

	if err := s.mirror.Remove(ctx, path); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}

	s.pub.Remove(path)
	return nil
}

// Rename moves an item remotely (copy then delete; S3 has no rename) and in
// the mirror when a local copy exists.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	if err := s.copyObject(ctx, from, to); err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(from)),
	}); err != nil {
		return mapError(from, err)
	}

	if err := s.mirror.Rename(ctx, from, to); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}

	s.pub.Remove(from)
	s.pub.SetItem(index.Item{Path: to, DownloadStatus: index.StatusNotDownloaded})
	return nil
}

// Copy duplicates an item remotely and, when a local copy exists, in the
// mirror as well.
func (s *Store) Copy(ctx context.Context, from, to string) error {
	if err := s.copyObject(ctx, from, to); err != nil {
		return err
	}

	if err := s.mirror.Copy(ctx, from, to); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}

	s.pub.SetItem(index.Item{Path: to, DownloadStatus: index.StatusNotDownloaded})
	return nil
}

func (s *Store) copyObject(ctx context.Context, from, to string) error {
	if err := remote.ValidatePath(from); err != nil {
		return err
	}
	if err := remote.ValidatePath(to); err != nil {
		return err
	}

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.objectKey(to)),
		CopySource: aws.String(s.bucket + "/" + s.objectKey(from)),
	})
	if err != nil {
		return mapError(from, err)
	}
	return nil
}

func (s *Store) objectKey(path string) string {
	return s.keyPrefix + path
}

// mapError converts an S3 SDK failure into the coordinator error shapes.
// Missing objects map to remote.ErrNotFound; everything else keeps its
// original cause for the classifier to surface as a native failure.
func mapError(path string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("object %s: %w", path, remote.ErrNotFound)
	}
	return fmt.Errorf("object %s: %w", path, err)
}
