package mobilemoney

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Coll76/nearbyhappenings/internal/config"
	"github.com/Coll76/nearbyhappenings/internal/provider"
)

// Client はモバイルマネーAPIのHTTPクライアント
// アクセストークンは有効期限までキャッシュし、失効時に再取得する
type Client struct {
	cfg        config.MobileMoneyProviderConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient は新しいクライアントを作成する
func NewClient(cfg config.MobileMoneyProviderConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// token はキャッシュ済みトークンを返す。失効している場合は再取得する
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", provider.ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status=%d", provider.ErrProviderUnreachable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("トークンレスポンスの解析に失敗: %w", err)
	}
	if tr.AccessToken == "" {
		return "", provider.ErrInvalidCredentials
	}

	// 失効直前の使用を避けるため1分の余裕を持たせる
	c.accessToken = tr.AccessToken
	c.tokenExpiry = time.Now().Add(55 * time.Minute)
	return c.accessToken, nil
}

// postJSON は認証付きでJSONをPOSTし、レスポンスを返す
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("リクエストの組み立てに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrProviderUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return provider.ErrInvalidCredentials
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status=%d", provider.ErrProviderUnreachable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var ae struct {
			ErrorMessage string `json:"errorMessage"`
			RequestID    string `json:"requestId"`
		}
		reason := fmt.Sprintf("status=%d", resp.StatusCode)
		if json.Unmarshal(respBody, &ae) == nil && ae.ErrorMessage != "" {
			reason = ae.ErrorMessage
		}
		return &provider.RequestRejectedError{Reason: reason}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("レスポンスの解析に失敗: %w", err)
	}
	return nil
}

// password はSTKプッシュの認証パスワードを生成する
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

// normalizePhone は電話番号を国際形式（254始まり）に正規化する
func normalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		p = "254" + p[1:]
	}
	return p
}
