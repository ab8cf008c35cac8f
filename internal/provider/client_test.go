package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/config"
	"github.com/spec-kit/chat-relay/internal/domain"
)

type capturedSend struct {
	path string
	body sendBody
}

func newTestClient(t *testing.T) (*Client, *capturedSend) {
	t.Helper()
	captured := &capturedSend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		if r.Header.Get("X-Api-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured.body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"id": "prov-1"}`))
	}))
	t.Cleanup(srv.Close)

	return NewClient(config.ProviderConfig{
		BaseURL:               srv.URL,
		APIKey:                "key",
		SessionName:           "default",
		RequestTimeoutSeconds: 5,
	}, zap.NewNop()), captured
}

func TestSend_Text(t *testing.T) {
	t.Parallel()

	c, captured := newTestClient(t)
	id, err := c.Send(context.Background(), &domain.ProviderSendRequest{
		To:   "5511999999999",
		Kind: domain.KindText,
		Text: "agent reply",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if id != "prov-1" {
		t.Fatalf("unexpected provider id %q", id)
	}
	if captured.path != "/api/sendText" {
		t.Fatalf("unexpected path %q", captured.path)
	}
	if captured.body.ChatID != "5511999999999@c.us" {
		t.Fatalf("unexpected chat id %q", captured.body.ChatID)
	}
	if captured.body.Text != "agent reply" || captured.body.Session != "default" {
		t.Fatalf("unexpected body %+v", captured.body)
	}
}

func TestSend_MediaKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind domain.ContentKind
		path string
	}{
		{domain.KindImage, "/api/sendImage"},
		{domain.KindAudio, "/api/sendVoice"},
		{domain.KindVideo, "/api/sendVideo"},
		{domain.KindDocument, "/api/sendFile"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()

			c, captured := newTestClient(t)
			_, err := c.Send(context.Background(), &domain.ProviderSendRequest{
				To:       "5511999999999",
				Kind:     tc.kind,
				MediaURL: "https://cdn.example/m",
				Caption:  "look",
			})
			if err != nil {
				t.Fatalf("Send() error: %v", err)
			}
			if captured.path != tc.path {
				t.Fatalf("expected path %q, got %q", tc.path, captured.path)
			}
			if captured.body.FileURL != "https://cdn.example/m" || captured.body.Caption != "look" {
				t.Fatalf("unexpected body %+v", captured.body)
			}
		})
	}
}

// Kinds without a provider endpoint degrade to a text send of the caption.
func TestSend_UnmappedKindDegrades(t *testing.T) {
	t.Parallel()

	c, captured := newTestClient(t)
	_, err := c.Send(context.Background(), &domain.ProviderSendRequest{
		To:      "5511999999999",
		Kind:    domain.KindPoll,
		Caption: "poll results",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if captured.path != "/api/sendText" {
		t.Fatalf("expected text fallback, got %q", captured.path)
	}
	if captured.body.Text != "poll results" {
		t.Fatalf("expected caption as text, got %+v", captured.body)
	}
}

func TestSend_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.ProviderConfig{BaseURL: srv.URL, RequestTimeoutSeconds: 5}, zap.NewNop())
	_, err := c.Send(context.Background(), &domain.ProviderSendRequest{
		To: "5511999999999", Kind: domain.KindText, Text: "x",
	})
	if err == nil {
		t.Fatal("expected an error on 5xx")
	}
}
