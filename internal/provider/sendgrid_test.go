package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

// fakeHTTPClient returns a canned response and records the last request.
type fakeHTTPClient struct {
	resp    *HTTPResponse
	err     error
	lastReq *HTTPRequest
}

func (f *fakeHTTPClient) Do(_ context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestSendGrid_buildPayload_TextAndHTML(t *testing.T) {
	sg := &SendGrid{}
	msg := &Message{
		From:     "noreply@dealer.example.com",
		To:       []string{"sales@dealer.example.com", "manager@dealer.example.com"},
		Subject:  "New Trade-In Lead – 2020 Subaru Forester",
		TextBody: "text part",
		HTMLBody: "<h2>New Trade-In Lead</h2>",
	}

	payload := sg.buildPayload(msg)

	if len(payload.Personalizations) != 1 || len(payload.Personalizations[0].To) != 2 {
		t.Fatalf("unexpected personalizations: %+v", payload.Personalizations)
	}
	if payload.From.Email != "noreply@dealer.example.com" {
		t.Errorf("unexpected from: %s", payload.From.Email)
	}

	if len(payload.Content) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(payload.Content))
	}
	// text/plain must come before text/html.
	if payload.Content[0].Type != "text/plain" || payload.Content[0].Value != "text part" {
		t.Errorf("unexpected first content part: %+v", payload.Content[0])
	}
	if payload.Content[1].Type != "text/html" {
		t.Errorf("expected second content text/html, got %s", payload.Content[1].Type)
	}
}

func TestSendGrid_buildPayload_Attachments(t *testing.T) {
	sg := &SendGrid{}
	msg := &Message{
		From:    "noreply@dealer.example.com",
		To:      []string{"sales@dealer.example.com"},
		Subject: "Test",
		TextBody: "body",
		Attachments: []Attachment{
			{Filename: "front.jpg", ContentType: "image/jpeg", Content: []byte("jpegbytes")},
		},
	}

	payload := sg.buildPayload(msg)

	if len(payload.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(payload.Attachments))
	}
	att := payload.Attachments[0]
	if att.Filename != "front.jpg" {
		t.Errorf("unexpected filename: %s", att.Filename)
	}
	if att.Type != "image/jpeg" {
		t.Errorf("unexpected type: %s", att.Type)
	}
	if att.Disposition != "attachment" {
		t.Errorf("unexpected disposition: %s", att.Disposition)
	}
	if att.Content != base64.StdEncoding.EncodeToString([]byte("jpegbytes")) {
		t.Errorf("attachment content not base64 encoded: %s", att.Content)
	}
}

func TestSendGrid_buildPayload_EmptyBodies(t *testing.T) {
	sg := &SendGrid{}
	payload := sg.buildPayload(&Message{From: "a@b.c", To: []string{"d@e.f"}})

	// SendGrid rejects messages without content, so an empty text part is sent.
	if len(payload.Content) != 1 || payload.Content[0].Type != "text/plain" {
		t.Errorf("expected fallback text/plain content, got %+v", payload.Content)
	}
}

func TestSendGrid_Send_Success(t *testing.T) {
	client := &fakeHTTPClient{
		resp: &HTTPResponse{
			StatusCode: 202,
			Headers:    map[string]string{"X-Message-Id": "sg-123"},
		},
	}
	sg := NewSendGrid(Config{Type: "sendgrid", APIKey: "key"}, client)

	result, err := sg.Send(context.Background(), &Message{
		From: "a@b.c", To: []string{"d@e.f"}, Subject: "s", TextBody: "t",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Status != StatusSent {
		t.Errorf("expected status sent, got %s", result.Status)
	}
	if result.ProviderMessageID != "sg-123" {
		t.Errorf("expected provider message ID sg-123, got %s", result.ProviderMessageID)
	}

	if client.lastReq.Method != "POST" {
		t.Errorf("expected POST, got %s", client.lastReq.Method)
	}
	if client.lastReq.URL != sendgridDefaultEndpoint+sendgridSendPath {
		t.Errorf("unexpected URL: %s", client.lastReq.URL)
	}
	if client.lastReq.Headers["Authorization"] != "Bearer key" {
		t.Errorf("unexpected auth header: %s", client.lastReq.Headers["Authorization"])
	}
}

func TestSendGrid_Send_ProviderRejects(t *testing.T) {
	client := &fakeHTTPClient{
		resp: &HTTPResponse{
			StatusCode: 401,
			Body:       []byte(`{"errors":[{"message":"invalid api key"}]}`),
		},
	}
	sg := NewSendGrid(Config{Type: "sendgrid", APIKey: "bad"}, client)

	_, err := sg.Send(context.Background(), &Message{From: "a@b.c", To: []string{"d@e.f"}})
	if err == nil {
		t.Fatal("expected error")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if pe.StatusCode != 401 {
		t.Errorf("expected status 401, got %d", pe.StatusCode)
	}
	if pe.Body == "" {
		t.Error("expected diagnostic body to be carried")
	}
	if !pe.Permanent {
		t.Error("expected 401 to classify as permanent")
	}
}

func TestSendGrid_Send_NetworkError(t *testing.T) {
	client := &fakeHTTPClient{err: errors.New("connection refused")}
	sg := NewSendGrid(Config{Type: "sendgrid", APIKey: "key"}, client)

	if _, err := sg.Send(context.Background(), &Message{From: "a@b.c", To: []string{"d@e.f"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSendGrid_EndpointOverride(t *testing.T) {
	client := &fakeHTTPClient{resp: &HTTPResponse{StatusCode: 202}}
	sg := NewSendGrid(Config{Type: "sendgrid", APIKey: "key", Endpoint: "http://localhost:9999"}, client)

	if _, err := sg.Send(context.Background(), &Message{From: "a@b.c", To: []string{"d@e.f"}}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.lastReq.URL != "http://localhost:9999"+sendgridSendPath {
		t.Errorf("unexpected URL: %s", client.lastReq.URL)
	}
}
