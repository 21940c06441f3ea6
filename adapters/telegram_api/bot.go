package telegram_api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/jdelaire/botpoll/core"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	callTimeout    = 10 * time.Second
	// pollGrace is added to the long-poll timeout so the server answers
	// before the client gives up.
	pollGrace = 10 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      jsoniter.RawMessage `json:"result"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
	Parameters  *responseParameters `json:"parameters"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after"`
	MigrateToChatID int64 `json:"migrate_to_chat_id"`
}

type getUpdatesParams struct {
	Offset         int64             `json:"offset,omitempty"`
	Limit          int               `json:"limit,omitempty"`
	Timeout        int               `json:"timeout"`
	AllowedUpdates []core.UpdateKind `json:"allowed_updates,omitempty"`
}

type sendMessageParams struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type answerCallbackQueryParams struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

// Bot talks to the Telegram Bot API over HTTPS. It implements core.Fetcher and
// core.Client.
type Bot struct {
	token   string
	client  *http.Client
	baseURL string
}

var (
	_ core.Fetcher = (*Bot)(nil)
	_ core.Client  = (*Bot)(nil)
)

// New creates a Bot for the given token.
func New(token string) *Bot {
	return &Bot{
		token:   token,
		client:  &http.Client{},
		baseURL: defaultBaseURL,
	}
}

// WithBaseURL overrides the Telegram API base URL (for testing).
func (b *Bot) WithBaseURL(baseURL string) *Bot {
	b.baseURL = baseURL
	return b
}

// WithHTTPClient replaces the HTTP client. Its Timeout should be zero or
// longer than the long-poll timeout.
func (b *Bot) WithHTTPClient(c *http.Client) *Bot {
	b.client = c
	return b
}

// GetUpdates long-polls for updates starting at req.Offset.
func (b *Bot) GetUpdates(ctx context.Context, req core.GetUpdatesRequest) ([]core.Update, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second+pollGrace)
	defer cancel()

	params := getUpdatesParams{
		Offset:         req.Offset,
		Limit:          req.Limit,
		Timeout:        req.Timeout,
		AllowedUpdates: req.AllowedUpdates,
	}

	var updates []core.Update
	if err := b.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage posts a plain text message to chatID.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) (*core.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var msg core.Message
	if err := b.call(ctx, "sendMessage", sendMessageParams{ChatID: chatID, Text: text}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AnswerCallbackQuery acknowledges an inline keyboard press.
func (b *Bot) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := answerCallbackQueryParams{CallbackQueryID: callbackQueryID, Text: text}
	return b.call(ctx, "answerCallbackQuery", params, nil)
}

// GetMe returns the bot's own user. Useful to validate the token at startup.
func (b *Bot) GetMe(ctx context.Context) (*core.User, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var me core.User
	if err := b.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// call posts params as JSON to the given method and decodes the result into
// out. API rejections are returned as *core.RequestError.
func (b *Bot) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%s: encode params: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", method, withoutURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http post: %w", method, withoutURL(err))
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: api status: %d", method, resp.StatusCode)
		}
		return fmt.Errorf("%s: decode response: %w", method, err)
	}

	if !apiResp.OK {
		reqErr := &core.RequestError{
			Method:      method,
			Code:        apiResp.ErrorCode,
			Description: apiResp.Description,
		}
		if reqErr.Code == 0 {
			reqErr.Code = resp.StatusCode
		}
		if apiResp.Parameters != nil {
			reqErr.RetryAfter = apiResp.Parameters.RetryAfter
		}
		return reqErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(apiResp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// withoutURL drops the request URL from a *url.Error. The URL embeds the bot
// token and these errors end up in logs.
func withoutURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
