// Package backup mirrors submissions to a secondary store. Everything
// here is best-effort: failures are logged and swallowed, and the
// request path never waits on a forward.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/lead-relay/internal/metrics"
	"github.com/sungwon/lead-relay/internal/payload"
)

const defaultTimeout = 10 * time.Second

// Config holds backup endpoint configuration.
type Config struct {
	// Endpoint is the backup webhook URL. Empty disables forwarding.
	Endpoint string
	// Secret, when set, is appended as a "secret" query parameter.
	Secret string
	// Timeout bounds each forward call.
	Timeout time.Duration
}

// Forwarder posts submission mirrors to the configured backup endpoint.
type Forwarder struct {
	endpoint string
	secret   string
	client   *http.Client
	log      zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewForwarder creates a Forwarder. With an empty endpoint the forwarder
// is disabled and every call is a no-op.
func NewForwarder(cfg Config, log zerolog.Logger) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Forwarder{
		endpoint: cfg.Endpoint,
		secret:   cfg.Secret,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log,
		now:      time.Now,
	}
}

// Enabled reports whether a backup endpoint is configured.
func (f *Forwarder) Enabled() bool {
	return f.endpoint != ""
}

// ForwardDetached mirrors the submission in a detached goroutine. The
// caller's response must not depend on the outcome, so the goroutine runs
// on its own timeout context and only logs its result. The returned
// channel closes when the forward finishes; production callers ignore it.
func (f *Forwarder) ForwardDetached(sub payload.Submission, fileURLs []string) <-chan struct{} {
	done := make(chan struct{})
	if !f.Enabled() {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), f.client.Timeout)
		defer cancel()

		if err := f.forward(ctx, sub, fileURLs); err != nil {
			f.log.Warn().Err(err).Msg("backup forward failed")
			metrics.BackupForwardsTotal.WithLabelValues("error").Inc()
			return
		}
		f.log.Debug().Msg("backup forward succeeded")
		metrics.BackupForwardsTotal.WithLabelValues("ok").Inc()
	}()
	return done
}

// forward composes the mirror record and posts it. The record carries the
// original fields in their submitted JSON shape, the file URL list, and a
// forwarding timestamp.
func (f *Forwarder) forward(ctx context.Context, sub payload.Submission, fileURLs []string) error {
	record := make(map[string]interface{}, len(sub)+2)
	for k, v := range sub {
		record[k] = v
	}
	record["fileUrls"] = fileURLs
	record["forwardedAt"] = f.now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal backup record: %w", err)
	}

	endpoint, err := f.buildURL()
	if err != nil {
		return fmt.Errorf("build backup url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build backup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post backup record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backup endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (f *Forwarder) buildURL() (string, error) {
	if f.secret == "" {
		return f.endpoint, nil
	}
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("secret", f.secret)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
