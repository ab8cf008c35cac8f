package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/chat-relay/internal/api/http"
	"github.com/spec-kit/chat-relay/internal/api/http/handlers"
	"github.com/spec-kit/chat-relay/internal/auth"
	"github.com/spec-kit/chat-relay/internal/config"
	"github.com/spec-kit/chat-relay/internal/correlation"
	"github.com/spec-kit/chat-relay/internal/domain"
	"github.com/spec-kit/chat-relay/internal/observability"
	"github.com/spec-kit/chat-relay/internal/persistence"
	"github.com/spec-kit/chat-relay/internal/queue"
)

type testServer struct {
	app    *fiber.App
	queue  *queue.Queue
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T, sharedToken string) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zap.NewNop()
	jobQueue := queue.New(rdb, "relay", 50, logger)
	tokens := auth.NewTokenManager("test-secret", 60)

	pg, err := persistence.NewPostgres(context.Background(), config.PostgresConfig{}, logger)
	if err != nil {
		t.Fatalf("NewPostgres() error: %v", err)
	}
	redisStore := persistence.NewRedis(config.RedisConfig{Addr: mr.Addr()}, logger)
	t.Cleanup(redisStore.Close)

	queueCfg := config.QueueConfig{StatusDelaySeconds: 30}

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, observability.NewMetrics(), 5*time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:             handlers.NewHealthHandler("chat-relay", "test", pg, redisStore),
		Webhook:            handlers.NewWebhookHandler(jobQueue, queueCfg, logger),
		Ops:                handlers.NewOpsHandler(jobQueue, nil),
		Tokens:             tokens,
		WebhookSharedToken: sharedToken,
	})

	return &testServer{app: app, queue: jobQueue, tokens: tokens}
}

func (s *testServer) post(t *testing.T, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	parsed := map[string]any{}
	_ = json.Unmarshal(raw, &parsed)
	return resp, parsed
}

func (s *testServer) get(t *testing.T, path string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	parsed := map[string]any{}
	_ = json.Unmarshal(raw, &parsed)
	return resp, parsed
}

const validMessage = `{
	"participantId": "5511999999999@c.us",
	"messageId": "M1",
	"type": "text",
	"fromMe": false,
	"text": {"body": "hello"}
}`

func TestMessageReceived_Accepted(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")
	resp, body := s.post(t, "/webhook/waha/message-received", validMessage, nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["accepted"] != true {
		t.Fatalf("expected accepted response, got %v", body)
	}
	if body["correlationId"] == "" || body["correlationId"] == nil {
		t.Fatal("expected a correlation id in the response")
	}

	job, err := s.queue.Dequeue(context.Background(), queue.MessageQueue)
	if err != nil || job == nil {
		t.Fatalf("expected an enqueued job, got %v / %v", job, err)
	}
	if job.Kind != domain.JobKindMessage || job.Envelope == nil || job.Envelope.MessageID != "M1" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Priority != domain.PriorityHigh {
		t.Fatalf("direct messages are high priority, got %v", job.Priority)
	}
}

// Self-sent messages are acknowledged but never enqueued.
func TestMessageReceived_FromMeDropped(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")
	body := strings.Replace(validMessage, `"fromMe": false`, `"fromMe": true`, 1)
	resp, parsed := s.post(t, "/webhook/waha/message-received", body, nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if parsed["accepted"] != true {
		t.Fatalf("expected acknowledgment, got %v", parsed)
	}

	stats, err := s.queue.QueueStats(context.Background(), queue.MessageQueue)
	if err != nil {
		t.Fatalf("QueueStats() error: %v", err)
	}
	if stats.Queued != 0 {
		t.Fatalf("self-sent message must not be enqueued, queued=%d", stats.Queued)
	}
}

func TestMessageReceived_GroupMessageLowPriority(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")
	body := strings.Replace(validMessage, `"fromMe": false`, `"fromMe": false, "isGroup": true`, 1)
	resp, _ := s.post(t, "/webhook/waha/message-received", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	job, err := s.queue.Dequeue(context.Background(), queue.MessageQueue)
	if err != nil || job == nil {
		t.Fatalf("Dequeue() = %v, %v", job, err)
	}
	if job.Priority != domain.PriorityLow {
		t.Fatalf("group messages yield to 1:1 traffic, got priority %v", job.Priority)
	}
}

func TestMessageReceived_ValidationError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")
	resp, body := s.post(t, "/webhook/waha/message-received", `{"type": "text"}`, nil)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%v)", resp.StatusCode, body)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["code"] != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED envelope, got %v", body)
	}
	if body["correlationId"] == nil {
		t.Fatal("error responses must carry the correlation id")
	}
}

func TestMessageReceived_CorrelationIDAdopted(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")
	resp, body := s.post(t, "/webhook/waha/message-received", validMessage,
		map[string]string{correlation.Header: "corr-123"})

	if resp.Header.Get(correlation.Header) != "corr-123" {
		t.Fatalf("expected correlation header echoed, got %q", resp.Header.Get(correlation.Header))
	}
	if body["correlationId"] != "corr-123" {
		t.Fatalf("expected adopted correlation id, got %v", body["correlationId"])
	}
}

// Status jobs are delayed; they must not be claimable immediately.
func TestMessageStatus_Delayed(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")
	resp, _ := s.post(t, "/webhook/waha/message-status", `{"messageId": "M1", "ack": 2}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	ctx := context.Background()
	stats, err := s.queue.QueueStats(ctx, queue.StatusQueue)
	if err != nil || stats.Queued != 1 {
		t.Fatalf("expected one queued status job, got %+v / %v", stats, err)
	}
	job, err := s.queue.Dequeue(ctx, queue.StatusQueue)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if job != nil {
		t.Fatalf("delayed status job must not be visible yet, got %+v", job)
	}
}

func TestPlatformMessageCreated_Relayed(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")
	body := `{
		"event": "message_created",
		"message_type": "outgoing",
		"private": false,
		"content": "agent reply",
		"conversation": {"id": 42, "meta": {"sender": {"phone_number": "+5511999999999"}}}
	}`
	resp, _ := s.post(t, "/webhook/platform/message-created", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	job, err := s.queue.Dequeue(context.Background(), queue.OutboundQueue)
	if err != nil || job == nil {
		t.Fatalf("Dequeue() = %v, %v", job, err)
	}
	if job.Outbound == nil || job.Outbound.ParticipantID != "5511999999999" {
		t.Fatalf("unexpected outbound job %+v", job.Outbound)
	}
	if job.Outbound.Content != "agent reply" || job.Outbound.ConversationID != 42 {
		t.Fatalf("unexpected outbound payload %+v", job.Outbound)
	}
}

// Echoes of our own relayed messages, private notes and incoming events must
// not be relayed back to the provider.
func TestPlatformMessageCreated_SkipRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{
			"own echo via source_id",
			`{"message_type": "outgoing", "source_id": "M1", "content": "x",
			  "conversation": {"id": 1, "meta": {"sender": {"phone_number": "+5511999999999"}}}}`,
		},
		{
			"private note",
			`{"message_type": "outgoing", "private": true, "content": "x",
			  "conversation": {"id": 1, "meta": {"sender": {"phone_number": "+5511999999999"}}}}`,
		},
		{
			"incoming direction",
			`{"message_type": "incoming", "content": "x",
			  "conversation": {"id": 1, "meta": {"sender": {"phone_number": "+5511999999999"}}}}`,
		},
		{
			"other event",
			`{"event": "conversation_updated", "message_type": "outgoing", "content": "x",
			  "conversation": {"id": 1, "meta": {"sender": {"phone_number": "+5511999999999"}}}}`,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, "")
			resp, _ := s.post(t, "/webhook/platform/message-created", tc.body, nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
			stats, err := s.queue.QueueStats(context.Background(), queue.OutboundQueue)
			if err != nil || stats.Queued != 0 {
				t.Fatalf("expected nothing enqueued, got %+v / %v", stats, err)
			}
		})
	}
}

func TestWebhookSharedToken(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "hook-secret")

	resp, body := s.post(t, "/webhook/waha/message-received", validMessage, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d (%v)", resp.StatusCode, body)
	}

	resp, _ = s.post(t, "/webhook/waha/message-received", validMessage,
		map[string]string{"X-Webhook-Token": "hook-secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestOpsEndpoints_RequireBearer(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")

	resp, _ := s.get(t, "/internal/queue/stats", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", resp.StatusCode)
	}

	token, _, err := s.tokens.GenerateToken("ops")
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	resp, body := s.get(t, "/internal/queue/stats", map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with bearer, got %d (%v)", resp.StatusCode, body)
	}
	data, _ := body["data"].(map[string]any)
	if data == nil || data[queue.MessageQueue] == nil {
		t.Fatalf("expected per-queue stats, got %v", body)
	}

	resp, body = s.get(t, "/internal/jobs/failed", map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, "")

	resp, body := s.get(t, "/health/live", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "alive" {
		t.Fatalf("unexpected liveness response %d %v", resp.StatusCode, body)
	}

	resp, body = s.get(t, "/health/ready", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d (%v)", resp.StatusCode, body)
	}
	deps, _ := body["dependencies"].(map[string]any)
	if deps == nil || deps["postgres"] != "not configured" || deps["redis"] != "ok" {
		t.Fatalf("unexpected dependency report %v", body)
	}
}
