package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/trackforge/backend/internal/config"
	"golang.org/x/sync/errgroup"
)

// CompletedPart identifies one finished part of a multipart session.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// blobStore is the slice of object storage the upload coordinator needs.
// Implemented by S3Service; faked in tests.
type blobStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	CreateMultipart(ctx context.Context, bucket, key, contentType string) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, data []byte) (string, error)
	CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error
}

// ProgressFunc receives monotonically non-decreasing percentages 0..100.
type ProgressFunc func(percent int)

// UploadService uploads a binary asset either as one request or as a
// sequence of size-bounded parts. The operation is atomic from the caller's
// perspective: either the returned key refers to a complete stored object,
// or nothing is stored.
type UploadService struct {
	store blobStore
	cfg   *config.Config
}

func NewUploadService(store blobStore, cfg *config.Config) *UploadService {
	return &UploadService{store: store, cfg: cfg}
}

// Upload stores data under bucket/key, reporting progress. Below the
// whole-file threshold a single request is used; larger payloads go through
// a multipart session with bounded part concurrency. Any part failure aborts
// the session before returning.
func (s *UploadService) Upload(ctx context.Context, bucket, key string, data []byte, contentType string, onProgress ProgressFunc) error {
	report := newProgressReporter(int64(len(data)), onProgress)
	report.emit(0)

	if int64(len(data)) < s.cfg.UploadWholeFileThreshold {
		if err := s.store.Put(ctx, bucket, key, data, contentType); err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		report.emit(int64(len(data)))
		return nil
	}

	uploadID, err := s.store.CreateMultipart(ctx, bucket, key, contentType)
	if err != nil {
		return fmt.Errorf("failed to open multipart session: %w", err)
	}

	partSize := s.cfg.UploadPartSize
	partCount := int((int64(len(data)) + partSize - 1) / partSize)
	parts := make([]CompletedPart, partCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.UploadPartConcurrency)

	for i := 0; i < partCount; i++ {
		i := i
		g.Go(func() error {
			start := int64(i) * partSize
			end := start + partSize
			if end > int64(len(data)) {
				end = int64(len(data))
			}
			chunk := data[start:end]

			etag, err := s.store.UploadPart(gctx, bucket, key, uploadID, int32(i+1), chunk)
			if err != nil {
				return fmt.Errorf("part %d failed: %w", i+1, err)
			}
			parts[i] = CompletedPart{PartNumber: int32(i + 1), ETag: etag}
			report.add(int64(len(chunk)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if abortErr := s.store.AbortMultipart(context.WithoutCancel(ctx), bucket, key, uploadID); abortErr != nil {
			log.Printf("[Upload] Warning: failed to abort multipart session %s: %v", uploadID, abortErr)
		}
		return fmt.Errorf("upload failed: %w", err)
	}

	if err := s.store.CompleteMultipart(ctx, bucket, key, uploadID, parts); err != nil {
		if abortErr := s.store.AbortMultipart(context.WithoutCancel(ctx), bucket, key, uploadID); abortErr != nil {
			log.Printf("[Upload] Warning: failed to abort multipart session %s: %v", uploadID, abortErr)
		}
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	report.finish()
	return nil
}

// progressReporter turns completed byte counts into monotonically
// non-decreasing percentages. Completion holds 99 back for the final
// CompleteMultipart call.
type progressReporter struct {
	mu      sync.Mutex
	total   int64
	done    int64
	last    int
	fn      ProgressFunc
	chunked bool
}

func newProgressReporter(total int64, fn ProgressFunc) *progressReporter {
	return &progressReporter{total: total, last: -1, fn: fn}
}

func (p *progressReporter) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunked = true
	p.done += n
	pct := int(p.done * 100 / maxInt64(p.total, 1))
	if pct > 99 {
		pct = 99
	}
	p.emitLocked(pct)
}

func (p *progressReporter) emit(done int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	p.emitLocked(int(done * 100 / maxInt64(p.total, 1)))
}

func (p *progressReporter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLocked(100)
}

func (p *progressReporter) emitLocked(pct int) {
	if p.fn == nil || pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
