package card

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Coll76/nearbyhappenings/internal/config"
	"github.com/Coll76/nearbyhappenings/internal/provider"
)

// Client はカード決済ゲートウェイのHTTPクライアント
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient は新しいクライアントを作成する
func NewClient(cfg config.CardProviderConfig) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// intent はゲートウェイ側の決済インテントを表す
type intent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	LastError    struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent は決済インテントを作成する
// 金額は最小通貨単位（セント等）で指定する
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, orderNumber, email, description string) (*intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("metadata[order_number]", orderNumber)
	form.Set("receipt_email", email)
	form.Set("description", description)

	return c.doIntent(ctx, http.MethodPost, "/v1/payment_intents", form)
}

// GetIntent は決済インテントの現在の状態を取得する
func (c *Client) GetIntent(ctx context.Context, intentID string) (*intent, error) {
	return c.doIntent(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, nil)
}

// CreateRefund は決済インテントに対する返金を作成する
func (c *Client) CreateRefund(ctx context.Context, intentID string, amountMinor int64) error {
	form := url.Values{}
	form.Set("payment_intent", intentID)
	form.Set("amount", strconv.FormatInt(amountMinor, 10))

	_, err := c.do(ctx, http.MethodPost, "/v1/refunds", form)
	return err
}

func (c *Client) doIntent(ctx context.Context, method, path string, form url.Values) (*intent, error) {
	body, err := c.do(ctx, method, path, form)
	if err != nil {
		return nil, err
	}

	var in intent
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("レスポンスの解析に失敗: %w", err)
	}
	return &in, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, provider.ErrInvalidCredentials
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d", provider.ErrProviderUnreachable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var ae apiError
		reason := "status=" + strconv.Itoa(resp.StatusCode)
		if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
			reason = ae.Error.Message
		}
		return nil, &provider.RequestRejectedError{Reason: reason}
	}

	return body, nil
}
