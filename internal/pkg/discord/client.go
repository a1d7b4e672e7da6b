package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://discord.com/api/v10"

// Config holds Discord bot configuration
type Config struct {
	BotToken string
	GuildID  string
	BaseURL  string
	Timeout  time.Duration
}

// Client is a minimal Discord REST client for guild role management
// and webhook messages. Only the endpoints reconciliation needs.
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new Discord API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// Configured reports whether the client has credentials to act.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.config.BotToken) != "" && strings.TrimSpace(c.config.GuildID) != ""
}

// AddMemberRole assigns a role to a guild member.
func (c *Client) AddMemberRole(ctx context.Context, userID, roleID string) error {
	return c.memberRole(ctx, http.MethodPut, userID, roleID)
}

// RemoveMemberRole removes a role from a guild member.
func (c *Client) RemoveMemberRole(ctx context.Context, userID, roleID string) error {
	return c.memberRole(ctx, http.MethodDelete, userID, roleID)
}

func (c *Client) memberRole(ctx context.Context, method, userID, roleID string) error {
	if !c.Configured() {
		return fmt.Errorf("discord client is not configured")
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(roleID) == "" {
		return fmt.Errorf("validation error: user id and role id must be non-empty")
	}

	url := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", c.config.BaseURL, c.config.GuildID, userID, roleID)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.config.BotToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// WebhookMessage is the body of an Execute Webhook call.
type WebhookMessage struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// ExecuteWebhook posts a message to a Discord webhook URL.
func (c *Client) ExecuteWebhook(ctx context.Context, webhookURL string, msg WebhookMessage) error {
	if strings.TrimSpace(webhookURL) == "" {
		return fmt.Errorf("webhook url is empty")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("validation error: message content must be non-empty")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
