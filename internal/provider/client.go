package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/config"
	"github.com/spec-kit/chat-relay/internal/domain"
)

// Client sends platform-originated messages back out through the messaging
// provider's HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	session    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds the provider send client.
func NewClient(cfg config.ProviderConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		session: cfg.SessionName,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		logger: logger,
	}
}

// Send-endpoint paths per content kind.
var sendPaths = map[domain.ContentKind]string{
	domain.KindText:     "/api/sendText",
	domain.KindImage:    "/api/sendImage",
	domain.KindAudio:    "/api/sendVoice",
	domain.KindVideo:    "/api/sendVideo",
	domain.KindDocument: "/api/sendFile",
}

type sendBody struct {
	Session  string `json:"session"`
	ChatID   string `json:"chatId"`
	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers one translated request. Returns the provider message id.
func (c *Client) Send(ctx context.Context, req *domain.ProviderSendRequest) (string, error) {
	path, ok := sendPaths[req.Kind]
	if !ok {
		// Degrade unmapped kinds to plain text using the content.
		c.logger.Warn("no provider send shape for kind; degrading to text",
			zap.String("kind", string(req.Kind)))
		path = sendPaths[domain.KindText]
		req = &domain.ProviderSendRequest{To: req.To, Kind: domain.KindText, Text: req.Caption}
	}

	body := sendBody{
		Session:  c.session,
		ChatID:   req.To + "@c.us",
		Text:     req.Text,
		Caption:  req.Caption,
		FileURL:  req.MediaURL,
		FileName: req.FileName,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("provider send failed: status %d body=%q", resp.StatusCode, string(respBody))
	}

	var sr sendResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", fmt.Errorf("decode provider response: %w body=%q", err, string(respBody))
	}
	return sr.ID, nil
}
