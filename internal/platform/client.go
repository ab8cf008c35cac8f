package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/config"
	"github.com/spec-kit/chat-relay/internal/correlation"
	"github.com/spec-kit/chat-relay/internal/domain"
	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

const accessTokenHeader = "api_access_token"

// Client is a typed HTTP client for the conversation platform. Every call
// retries transient failures with exponential backoff; exhausting the attempt
// budget surfaces as PlatformUnavailable.
type Client struct {
	baseURL     string
	accountID   int
	inboxID     int
	accessToken string
	maxAttempts int
	backoffBase time.Duration
	cooldown    time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
	sleep       func(time.Duration)
}

// NewClient builds a client from configuration. Connections are pooled by the
// underlying http.Client and shared across jobs.
func NewClient(cfg config.PlatformConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		accountID:   cfg.AccountID,
		inboxID:     cfg.InboxID,
		accessToken: cfg.AccessToken,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase(),
		cooldown:    cfg.RateLimitCooldown(),
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout()},
		logger:      logger,
		sleep:       time.Sleep,
	}
}

// InboxID returns the configured inbox for conversation creation.
func (c *Client) InboxID() int {
	return c.inboxID
}

// SearchContact finds a contact by normalized phone number. Returns nil when
// no contact matches.
func (c *Client) SearchContact(ctx context.Context, phone string) (*Contact, error) {
	path := fmt.Sprintf("/contacts/search?q=%s", url.QueryEscape("+"+phone))
	var resp contactSearchResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Payload {
		if domain.NormalizeParticipantID(resp.Payload[i].PhoneNumber) == phone ||
			resp.Payload[i].Identifier == phone {
			return &resp.Payload[i], nil
		}
	}
	return nil, nil
}

// CreateContact creates a contact in the configured inbox.
func (c *Client) CreateContact(ctx context.Context, contact NewContact) (*Contact, error) {
	var resp contactCreateResponse
	if err := c.do(ctx, http.MethodPost, "/contacts", contact, &resp); err != nil {
		return nil, err
	}
	created := resp.Payload.Contact
	return &created, nil
}

// OpenConversation returns the contact's conversation in open status, or nil
// when none exists. Resolved and closed conversations are never reused.
func (c *Client) OpenConversation(ctx context.Context, contactID int) (*Conversation, error) {
	path := fmt.Sprintf("/contacts/%d/conversations", contactID)
	var resp conversationListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Payload {
		if resp.Payload[i].Status == ConversationOpen {
			return &resp.Payload[i], nil
		}
	}
	return nil, nil
}

// CreateConversation opens a new conversation for the contact.
func (c *Client) CreateConversation(ctx context.Context, contactID int) (*Conversation, error) {
	body := map[string]any{
		"contact_id": contactID,
		"inbox_id":   c.inboxID,
		"status":     ConversationOpen,
	}
	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateMessage delivers a translated message into a conversation. The dedupe
// token rides along as source_id so the platform can drop re-deliveries.
func (c *Client) CreateMessage(ctx context.Context, conversationID int, msg *domain.OutboundMessage) (*Message, error) {
	req := messageCreateRequest{
		Content:           msg.Content,
		MessageType:       msg.Direction,
		SourceID:          msg.DedupeToken,
		ContentAttributes: msg.Metadata,
	}
	for _, att := range msg.Attachments {
		req.Attachments = append(req.Attachments, struct {
			Kind         string `json:"kind"`
			URL          string `json:"url"`
			ThumbnailURL string `json:"thumbnail_url,omitempty"`
		}{Kind: string(att.Kind), URL: att.URL, ThumbnailURL: att.ThumbnailURL})
	}

	path := fmt.Sprintf("/conversations/%d/messages", conversationID)
	var created Message
	if err := c.do(ctx, http.MethodPost, path, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ToggleConversationStatus patches a conversation's status.
func (c *Client) ToggleConversationStatus(ctx context.Context, conversationID int, status string) error {
	path := fmt.Sprintf("/conversations/%d/toggle_status", conversationID)
	body := map[string]any{"status": status}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// do performs one platform call with the retry policy: up to maxAttempts
// tries, backoff doubling from backoffBase, an extra cooldown after HTTP 429,
// and no sleep after the final attempt.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/%d%s", c.baseURL, c.accountID, path)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	attempts := c.maxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.sleep(c.backoffBase << (attempt - 1))
		}

		status, err := c.once(ctx, method, endpoint, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		c.logger.Warn("platform call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Int("status", status),
			zap.String("correlation_id", correlation.FromContext(ctx)),
			zap.Error(err))

		if !retryableStatus(status) {
			return apperrors.NewPlatformRejected(method+" "+path, status, lastErr)
		}
		if status == http.StatusTooManyRequests {
			c.sleep(c.cooldown)
		}
	}

	return apperrors.NewPlatformUnavailable(method+" "+path, lastErr)
}

// once performs a single HTTP exchange. The returned status is zero for
// transport-level failures.
func (c *Client) once(ctx context.Context, method, endpoint string, payload []byte, out any) (int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accessTokenHeader, c.accessToken)
	if id := correlation.FromContext(ctx); id != "" {
		req.Header.Set(correlation.Header, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d body=%s", resp.StatusCode, truncate(respBody, 512))
	}

	c.logger.Debug("platform call",
		zap.String("method", method),
		zap.String("url", redactQuery(endpoint)),
		zap.Int("status", resp.StatusCode))

	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w body=%s", err, truncate(respBody, 512))
	}
	return resp.StatusCode, nil
}

// retryableStatus treats transport failures (0), rate limits and server
// errors as transient. Other 4xx responses will not improve with retries.
func retryableStatus(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// redactQuery strips query strings from logged URLs; phone numbers travel in
// the contact search query.
func redactQuery(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}
