package intake

import (
	"testing"
	"time"

	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

func TestDecodeMessage_Strict(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"participantId": "5511999999999@c.us",
		"messageId": "M1",
		"type": "text",
		"fromMe": false,
		"text": {"body": "hello"},
		"timestamp": 1712000000,
		"pushName": "Ana"
	}`)

	env, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	if env.ParticipantID != "5511999999999@c.us" {
		t.Fatalf("unexpected participant %q", env.ParticipantID)
	}
	if env.MessageID != "M1" || env.Type != "text" || env.FromMe {
		t.Fatalf("unexpected required fields: %+v", env)
	}
	if env.Text == nil || env.Text.Value() != "hello" {
		t.Fatalf("expected text content, got %+v", env.Text)
	}
	if env.PushName != "Ana" {
		t.Fatalf("unexpected push name %q", env.PushName)
	}
	if env.Timestamp != time.Unix(1712000000, 0).UTC() {
		t.Fatalf("unexpected timestamp %v", env.Timestamp)
	}
}

// The strict tier requires primary names; alternate shapes fall through to
// the alias ladders.
func TestDecodeMessage_PermissiveAliases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name            string
		body            string
		wantParticipant string
		wantMessageID   string
		wantType        string
		wantFromMe      bool
	}{
		{
			name:            "from and id",
			body:            `{"from": "5511999999999", "id": "M2", "messageType": "image", "from_me": false, "image": {"url": "https://cdn.example/i"}}`,
			wantParticipant: "5511999999999",
			wantMessageID:   "M2",
			wantType:        "image",
		},
		{
			name:            "chatId and event",
			body:            `{"chatId": "5511888888888@c.us", "message_id": "M3", "event": "text", "self": "true"}`,
			wantParticipant: "5511888888888@c.us",
			wantMessageID:   "M3",
			wantType:        "text",
			wantFromMe:      true,
		},
		{
			name:            "numeric id tolerated",
			body:            `{"phone": "5511777777777", "id": 42, "type": "text", "fromMe": false}`,
			wantParticipant: "5511777777777",
			wantMessageID:   "42",
			wantType:        "text",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env, err := DecodeMessage([]byte(tc.body))
			if err != nil {
				t.Fatalf("DecodeMessage() error: %v", err)
			}
			if env.ParticipantID != tc.wantParticipant {
				t.Fatalf("participant: want %q, got %q", tc.wantParticipant, env.ParticipantID)
			}
			if env.MessageID != tc.wantMessageID {
				t.Fatalf("messageId: want %q, got %q", tc.wantMessageID, env.MessageID)
			}
			if env.Type != tc.wantType {
				t.Fatalf("type: want %q, got %q", tc.wantType, env.Type)
			}
			if env.FromMe != tc.wantFromMe {
				t.Fatalf("fromMe: want %v, got %v", tc.wantFromMe, env.FromMe)
			}
		})
	}
}

func TestDecodeMessage_MissingFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"no message id", `{"participantId": "551199", "type": "text", "fromMe": false}`},
		{"no fromMe anywhere", `{"participantId": "551199", "messageId": "M1", "type": "text"}`},
		{"malformed json", `{"participantId": `},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeMessage([]byte(tc.body))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !apperrors.HasCode(err, "VALIDATION_FAILED") {
				t.Fatalf("expected VALIDATION_FAILED, got %v", err)
			}
			if apperrors.IsRetryable(err) {
				t.Fatal("validation failures must be terminal")
			}
		})
	}
}

func TestDecodeMessage_ExtrasPreserved(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"participantId": "551199",
		"messageId": "M1",
		"type": "order",
		"fromMe": false,
		"orderPayload": {"items": 3},
		"sessionName": "default"
	}`)

	env, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	if len(env.Extra) != 2 {
		t.Fatalf("expected 2 extras, got %d: %v", len(env.Extra), env.Extra)
	}
	if _, ok := env.Extra["orderPayload"]; !ok {
		t.Fatal("expected orderPayload preserved")
	}
	if _, ok := env.Extra["sessionName"]; !ok {
		t.Fatal("expected sessionName preserved")
	}
}

func TestDecodeMessage_ReplyShapes(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"participantId": "551199",
		"messageId": "M1",
		"type": "text",
		"fromMe": false,
		"text": {"body": "yes"},
		"quotedMessage": {"id": "Q1", "body": "lunch?"},
		"contextInfo": {"stanzaId": "ST-1"}
	}`)

	env, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	if env.QuotedMessage == nil || env.QuotedMessage.ID != "Q1" {
		t.Fatalf("expected quoted message, got %+v", env.QuotedMessage)
	}
	if env.ContextInfo["stanzaId"] != "ST-1" {
		t.Fatalf("expected context info, got %v", env.ContextInfo)
	}
	// Reply shapes are schema fields, not extras.
	if env.Extra != nil {
		t.Fatalf("expected no extras, got %v", env.Extra)
	}
}

func TestDecodeMessage_MillisecondTimestamp(t *testing.T) {
	t.Parallel()

	body := []byte(`{"participantId": "551199", "messageId": "M1", "type": "text", "fromMe": false, "ts": 1712000000123}`)
	env, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	if env.Timestamp != time.UnixMilli(1712000000123).UTC() {
		t.Fatalf("unexpected timestamp %v", env.Timestamp)
	}
}

func TestDecodeStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		body       string
		wantStatus string
		wantErr    bool
	}{
		{"named status", `{"messageId": "M1", "status": "delivered"}`, "delivered", false},
		{"numeric ack", `{"id": "M1", "ack": 3}`, "read", false},
		{"upper case normalized", `{"messageId": "M1", "state": "READ"}`, "read", false},
		{"missing status", `{"messageId": "M1"}`, "", true},
		{"missing message id", `{"status": "sent"}`, "", true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			evt, err := DecodeStatus([]byte(tc.body))
			if tc.wantErr {
				if !apperrors.HasCode(err, "VALIDATION_FAILED") {
					t.Fatalf("expected VALIDATION_FAILED, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeStatus() error: %v", err)
			}
			if evt.Status != tc.wantStatus {
				t.Fatalf("status: want %q, got %q", tc.wantStatus, evt.Status)
			}
			if evt.MessageID != "M1" {
				t.Fatalf("unexpected message id %q", evt.MessageID)
			}
		})
	}
}
