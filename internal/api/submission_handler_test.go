package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/lead-relay/internal/attach"
	"github.com/sungwon/lead-relay/internal/backup"
	"github.com/sungwon/lead-relay/internal/config"
	"github.com/sungwon/lead-relay/internal/provider"
)

// recordingProvider counts sends and captures the last message.
type recordingProvider struct {
	sends   atomic.Int64
	lastMsg *provider.Message
	err     error
}

func (p *recordingProvider) Send(_ context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	p.sends.Add(1)
	p.lastMsg = msg
	if p.err != nil {
		return nil, p.err
	}
	return &provider.DeliveryResult{
		ProviderMessageID: "test-1",
		Status:            provider.StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

func (p *recordingProvider) GetName() string                    { return "recording" }
func (p *recordingProvider) HealthCheck(_ context.Context) error { return nil }

func validConfig() *config.Config {
	return &config.Config{
		Mail: config.MailConfig{
			Provider:   "sendgrid",
			APIKey:     "key",
			Sender:     "noreply@dealer.example.com",
			Recipients: "sales@dealer.example.com",
		},
	}
}

type handlerEnv struct {
	handler       http.HandlerFunc
	esp           *recordingProvider
	backupCalls   *atomic.Int64
	backupHit     chan struct{}
	backupServer  *httptest.Server
}

func newHandlerEnv(t *testing.T, cfg *config.Config, esp *recordingProvider) *handlerEnv {
	t.Helper()

	var backupCalls atomic.Int64
	backupHit := make(chan struct{}, 8)
	backupServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupCalls.Add(1)
		backupHit <- struct{}{}
	}))
	t.Cleanup(backupServer.Close)

	fetcher := attach.NewFetcher(attach.Config{FetchTimeout: 2 * time.Second}, zerolog.Nop())
	forwarder := backup.NewForwarder(backup.Config{Endpoint: backupServer.URL, Timeout: 2 * time.Second}, zerolog.Nop())

	return &handlerEnv{
		handler:      SubmissionHandler(cfg, esp, fetcher, forwarder),
		esp:          esp,
		backupCalls:  &backupCalls,
		backupHit:    backupHit,
		backupServer: backupServer,
	}
}

const validBody = `{"payload": {"data": {"year": "2020", "make": "Subaru", "model": "Forester", "name": "Jane"}, "files": []}}`

func TestSubmissionHandler_Success(t *testing.T) {
	env := newHandlerEnv(t, validConfig(), &recordingProvider{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/submission", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	env.handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.esp.sends.Load(); got != 1 {
		t.Errorf("expected 1 provider send, got %d", got)
	}

	msg := env.esp.lastMsg
	if msg.From != "noreply@dealer.example.com" {
		t.Errorf("unexpected sender: %s", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "sales@dealer.example.com" {
		t.Errorf("unexpected recipients: %v", msg.To)
	}
	if msg.Subject != "New Trade-In Lead – 2020 Subaru Forester" {
		t.Errorf("unexpected subject: %s", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "Name: Jane") {
		t.Errorf("expected field row in text body:\n%s", msg.TextBody)
	}

	// The mirror fires after the confirmed send.
	select {
	case <-env.backupHit:
	case <-time.After(3 * time.Second):
		t.Fatal("backup endpoint never received the mirror")
	}
}

func TestSubmissionHandler_MalformedPayload(t *testing.T) {
	env := newHandlerEnv(t, validConfig(), &recordingProvider{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/submission", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	env.handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := env.esp.sends.Load(); got != 0 {
		t.Errorf("expected zero provider calls, got %d", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := env.backupCalls.Load(); got != 0 {
		t.Errorf("expected zero backup calls, got %d", got)
	}
}

func TestSubmissionHandler_MissingConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.Recipients = ""
	env := newHandlerEnv(t, cfg, &recordingProvider{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/submission", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	env.handler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := env.esp.sends.Load(); got != 0 {
		t.Errorf("expected zero provider calls, got %d", got)
	}
}

func TestSubmissionHandler_NilProvider(t *testing.T) {
	fetcher := attach.NewFetcher(attach.Config{}, zerolog.Nop())
	forwarder := backup.NewForwarder(backup.Config{}, zerolog.Nop())
	handler := SubmissionHandler(validConfig(), nil, fetcher, forwarder)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/submission", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestSubmissionHandler_ProviderFailure(t *testing.T) {
	esp := &recordingProvider{
		err: &provider.ProviderError{Provider: "recording", StatusCode: 500, Body: "boom"},
	}
	env := newHandlerEnv(t, validConfig(), esp)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/submission", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	env.handler(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	// Backup fires only after a successful send.
	time.Sleep(100 * time.Millisecond)
	if got := env.backupCalls.Load(); got != 0 {
		t.Errorf("expected zero backup calls after failed send, got %d", got)
	}
}

func TestSubmissionHandler_AttachmentFailureDegrades(t *testing.T) {
	env := newHandlerEnv(t, validConfig(), &recordingProvider{})

	// File URL points at a closed port; the send must still go out with
	// zero attachments.
	body := `{"payload": {"data": {"name": "Jane"}, "files": [{"url": "http://127.0.0.1:1/a.jpg"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/submission", strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(env.esp.lastMsg.Attachments) != 0 {
		t.Errorf("expected zero attachments, got %d", len(env.esp.lastMsg.Attachments))
	}
}

func TestSubmissionHandler_AttachmentsRideAlong(t *testing.T) {
	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "jpegbytes")
	}))
	defer fileServer.Close()

	env := newHandlerEnv(t, validConfig(), &recordingProvider{})

	body := fmt.Sprintf(
		`{"payload": {"data": {"name": "Jane"}, "files": [{"url": "%s/front.jpg", "filename": "front.jpg", "type": "image/jpeg"}]}}`,
		fileServer.URL,
	)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/submission", strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	atts := env.esp.lastMsg.Attachments
	if len(atts) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(atts))
	}
	if atts[0].Filename != "front.jpg" || string(atts[0].Content) != "jpegbytes" {
		t.Errorf("unexpected attachment: %+v", atts[0])
	}
}
