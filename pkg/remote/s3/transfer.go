// This file contains the asynchronous fetch and push paths: streaming objects
// between the remote and the local mirror while publishing progress and
// status transitions into the metadata index.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/remote"
	"github.com/marmos91/dittosync/pkg/retry"
)

// progressStep is how many bytes are copied between progress publications.
// Bounding publication volume keeps the index notification path cheap for
// large objects.
const progressStep = 64 * 1024

// RequestFetch begins materializing a remote object into the mirror. The
// call returns once the fetch is scheduled; progress, completion and
// absence all surface through the index:
//
//   - progress fractions while bytes stream in
//   - download_status "current" once the mirror commit succeeds
//   - download_status "current" with no local bytes when the object does not
//     exist remotely, so the engine's coordinated open reports genuine
//     absence instead of the operation idling out
func (s *Store) RequestFetch(ctx context.Context, path string) error {
	if err := remote.ValidatePath(path); err != nil {
		return err
	}

	s.pub.SetItem(index.Item{
		Path:           path,
		DownloadStatus: index.StatusNotDownloaded,
		IsDownloading:  true,
	})

	go s.fetch(context.WithoutCancel(ctx), path)
	return nil
}

func (s *Store) fetch(ctx context.Context, path string) {
	err := retry.Do(ctx, s.backoff, s.attempts, func() error {
		return s.fetchOnce(ctx, path)
	})
	if err == nil {
		return
	}

	if errors.Is(err, remote.ErrNotFound) {
		// Let the engine's open attempt discover the absence.
		s.pub.SetItem(index.Item{
			Path:           path,
			DownloadStatus: index.StatusCurrent,
		})
		return
	}

	logger.Error("fetch of %q failed: %v", path, err)
	s.pub.SetItem(index.Item{
		Path:           path,
		DownloadStatus: index.StatusNotDownloaded,
	})
}

func (s *Store) fetchOnce(ctx context.Context, path string) error {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
	})
	if err != nil {
		mapped := mapError(path, err)
		if errors.Is(mapped, remote.ErrNotFound) {
			return mapped
		}
		return retry.Transient(mapped)
	}
	defer result.Body.Close()

	dst, err := s.mirror.Open(ctx, path, remote.ModeWrite)
	if err != nil {
		return err
	}

	var total int64
	if result.ContentLength != nil {
		total = *result.ContentLength
	}

	copied, err := s.copyWithProgress(path, dst, result.Body, total)
	if err != nil {
		dst.Close()
		return retry.Transient(fmt.Errorf("failed to stream object %s: %w", path, err))
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to commit fetched object %s: %w", path, err)
	}

	item := index.Item{
		Path:           path,
		SizeBytes:      &copied,
		DownloadStatus: index.StatusCurrent,
	}
	if result.LastModified != nil {
		item.ModifiedAt = result.LastModified
	}
	s.pub.SetItem(item)

	return nil
}

// copyWithProgress streams src into dst, publishing a fractional progress
// item at most every progressStep bytes.
func (s *Store) copyWithProgress(path string, dst io.Writer, src io.Reader, total int64) (int64, error) {
	var copied, lastPublished int64
	buf := make([]byte, 32*1024)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return copied, werr
			}
			copied += int64(n)

			if total > 0 && copied-lastPublished >= progressStep {
				lastPublished = copied
				pct := float64(copied) / float64(total) * 100
				s.pub.SetItem(index.Item{
					Path:           path,
					SizeBytes:      &total,
					DownloadStatus: index.StatusNotDownloaded,
					IsDownloading:  true,
					Progress:       &pct,
				})
			}
		}
		if err == io.EOF {
			return copied, nil
		}
		if err != nil {
			return copied, err
		}
	}
}

// RequestPush begins uploading the mirror copy of path to the remote. The
// call fails fast when no local copy exists; otherwise completion surfaces
// through the index upload flags (is_uploading, then is_uploaded).
func (s *Store) RequestPush(ctx context.Context, path string) error {
	if err := remote.ValidatePath(path); err != nil {
		return err
	}

	ok, err := s.mirror.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("item %s: %w", path, remote.ErrNotFound)
	}

	s.pub.SetItem(index.Item{
		Path:           path,
		DownloadStatus: index.StatusCurrent,
		IsUploading:    true,
	})

	go s.push(context.WithoutCancel(ctx), path)
	return nil
}

func (s *Store) push(ctx context.Context, path string) {
	err := retry.Do(ctx, s.backoff, s.attempts, func() error {
		return s.pushOnce(ctx, path)
	})
	if err != nil {
		logger.Error("push of %q failed: %v", path, err)
		s.pub.SetItem(index.Item{
			Path:           path,
			DownloadStatus: index.StatusCurrent,
			IsUploading:    false,
		})
		return
	}
}

func (s *Store) pushOnce(ctx context.Context, path string) error {
	src, err := s.mirror.Open(ctx, path, remote.ModeRead)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
		Body:   src,
	})
	if err != nil {
		return retry.Transient(mapError(path, err))
	}

	s.pub.SetItem(index.Item{
		Path:           path,
		DownloadStatus: index.StatusCurrent,
		IsUploading:    false,
		IsUploaded:     true,
	})
	return nil
}
