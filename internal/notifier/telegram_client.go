package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	commoncfg "github.com/laraveldev/tg-bot/common/config"
	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/service"
)

// ErrTelegram Bot API answered ok=false
var ErrTelegram = errors.New("telegram api error")

// apiResponse Bot API envelope
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type tgChatMember struct {
	Status string `json:"status"`
	User   tgUser `json:"user"`
}

func (m tgChatMember) toChatMember() service.ChatMember {
	return service.ChatMember{
		UserID: strconv.FormatInt(m.User.ID, 10),
		Profile: domain.Profile{
			FirstName: m.User.FirstName,
			LastName:  m.User.LastName,
			Username:  m.User.Username,
		},
		IsBot:  m.User.IsBot,
		Status: m.Status,
	}
}

// TelegramClient Bot API client for the few methods the lunch engine needs
type TelegramClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewTelegramClient base URL is {APIURL}/bot{token}
func NewTelegramClient(cfg commoncfg.TelegramConfig, logger *zap.Logger) *TelegramClient {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(apiURL+"/bot"+cfg.BotToken).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &TelegramClient{httpClient: client, logger: logger}
}

// call POSTs params to method and decodes result into out (when non-nil)
func (c *TelegramClient) call(ctx context.Context, method string, params map[string]any, out any) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("failed to call telegram %s: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("failed to decode telegram %s response (status %d): %w", method, resp.StatusCode(), err)
	}
	if !envelope.OK {
		c.logger.Debug("Telegram API returned error",
			zap.String("method", method),
			zap.Int("error_code", envelope.ErrorCode),
			zap.String("description", envelope.Description),
		)
		return fmt.Errorf("%w: %s: %s (code %d)", ErrTelegram, method, envelope.Description, envelope.ErrorCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode telegram %s result: %w", method, err)
	}
	return nil
}

// SendMessage plain-text message to chatID
func (c *TelegramClient) SendMessage(ctx context.Context, chatID, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

// GetChatMember membership of userID in chatID
func (c *TelegramClient) GetChatMember(ctx context.Context, chatID, userID string) (service.ChatMember, error) {
	var m tgChatMember
	if err := c.call(ctx, "getChatMember", map[string]any{"chat_id": chatID, "user_id": userID}, &m); err != nil {
		return service.ChatMember{}, err
	}
	return m.toChatMember(), nil
}

// GetChatAdministrators administrators of a group, bots included
func (c *TelegramClient) GetChatAdministrators(ctx context.Context, chatID string) ([]service.ChatMember, error) {
	var members []tgChatMember
	if err := c.call(ctx, "getChatAdministrators", map[string]any{"chat_id": chatID}, &members); err != nil {
		return nil, err
	}
	out := make([]service.ChatMember, 0, len(members))
	for _, m := range members {
		out = append(out, m.toChatMember())
	}
	return out, nil
}

// GetChatMemberCount number of members of chatID
func (c *TelegramClient) GetChatMemberCount(ctx context.Context, chatID string) (int, error) {
	var count int
	if err := c.call(ctx, "getChatMemberCount", map[string]any{"chat_id": chatID}, &count); err != nil {
		return 0, err
	}
	return count, nil
}
