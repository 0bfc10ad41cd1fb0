// Package attach resolves file references to email attachments under
// count and size budgets. Every per-file failure is recovered locally:
// the file is dropped with a warning and the pipeline continues.
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/lead-relay/internal/metrics"
	"github.com/sungwon/lead-relay/internal/payload"
	"github.com/sungwon/lead-relay/internal/provider"
)

const (
	DefaultMaxCount      = 10
	DefaultMaxFileBytes  = 7 << 20  // 7 MiB per file
	DefaultMaxTotalBytes = 20 << 20 // 20 MiB across all admitted files
	defaultFetchTimeout  = 15 * time.Second
)

// Config holds attachment fetch budgets. Zero values fall back to the
// package defaults.
type Config struct {
	MaxCount      int
	MaxFileBytes  int64
	MaxTotalBytes int64
	FetchTimeout  time.Duration
}

// Fetcher retrieves file contents over HTTP and turns them into
// provider attachments.
type Fetcher struct {
	client        *http.Client
	maxCount      int
	maxFileBytes  int64
	maxTotalBytes int64
	log           zerolog.Logger
}

// NewFetcher creates a Fetcher with the given budgets.
func NewFetcher(cfg Config, log zerolog.Logger) *Fetcher {
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = DefaultMaxCount
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	if cfg.MaxTotalBytes <= 0 {
		cfg.MaxTotalBytes = DefaultMaxTotalBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Fetcher{
		client:        &http.Client{Timeout: cfg.FetchTimeout},
		maxCount:      cfg.MaxCount,
		maxFileBytes:  cfg.MaxFileBytes,
		maxTotalBytes: cfg.MaxTotalBytes,
		log:           log,
	}
}

var errFileTooLarge = errors.New("file exceeds per-file size limit")

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

type fetchResult struct {
	att provider.Attachment
	err error
}

// Fetch retrieves up to maxCount file references concurrently and returns
// the attachments that survive the size budgets. It never returns an
// error; a fully failed batch simply yields an empty slice.
func (f *Fetcher) Fetch(ctx context.Context, refs []payload.FileReference) []provider.Attachment {
	if len(refs) == 0 {
		return nil
	}

	if len(refs) > f.maxCount {
		f.log.Warn().
			Int("total", len(refs)).
			Int("max", f.maxCount).
			Msg("too many file references; ignoring excess")
		metrics.AttachmentsDroppedTotal.WithLabelValues("excess").Add(float64(len(refs) - f.maxCount))
		refs = refs[:f.maxCount]
	}

	results := make([]fetchResult, len(refs))
	var wg sync.WaitGroup
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.fetchOne(ctx, refs[i])
		}(i)
	}
	wg.Wait()

	// Admission runs as a sequential fold in input order after the join,
	// which keeps the cumulative cap a hard ceiling and makes the
	// admitted set deterministic.
	var total int64
	attachments := make([]provider.Attachment, 0, len(refs))
	for i, res := range results {
		if res.err != nil {
			f.log.Warn().Err(res.err).Str("url", refs[i].URL).Msg("dropping file reference")
			metrics.AttachmentsDroppedTotal.WithLabelValues(dropReason(res.err)).Inc()
			continue
		}
		size := int64(len(res.att.Content))
		if total+size > f.maxTotalBytes {
			f.log.Warn().
				Str("url", refs[i].URL).
				Int64("size", size).
				Int64("budget_remaining", f.maxTotalBytes-total).
				Msg("dropping file reference: cumulative size budget exceeded")
			metrics.AttachmentsDroppedTotal.WithLabelValues("budget").Inc()
			continue
		}
		total += size
		attachments = append(attachments, res.att)
		metrics.AttachmentsAdmittedTotal.Inc()
	}
	return attachments
}

func (f *Fetcher) fetchOne(ctx context.Context, ref payload.FileReference) fetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return fetchResult{err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fetchResult{err: fmt.Errorf("fetch: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fetchResult{err: &statusError{code: resp.StatusCode}}
	}

	// Read one byte past the cap to detect oversize without buffering
	// arbitrarily large responses.
	content, err := io.ReadAll(io.LimitReader(resp.Body, f.maxFileBytes+1))
	if err != nil {
		return fetchResult{err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(content)) > f.maxFileBytes {
		return fetchResult{err: errFileTooLarge}
	}

	contentType := ref.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return fetchResult{att: provider.Attachment{
		Filename:    filenameFor(ref),
		ContentType: contentType,
		Content:     content,
	}}
}

// filenameFor picks the attachment filename: the reference's own name,
// else the last URL path segment, else a generic fallback.
func filenameFor(ref payload.FileReference) string {
	if ref.Filename != "" {
		return ref.Filename
	}
	if u, err := url.Parse(ref.URL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return "attachment"
}

func dropReason(err error) string {
	var se *statusError
	switch {
	case errors.Is(err, errFileTooLarge):
		return "oversize"
	case errors.As(err, &se):
		return "status"
	default:
		return "network"
	}
}
