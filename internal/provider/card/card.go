package card

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Coll76/nearbyhappenings/internal/config"
	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/provider"
)

// Card はカード決済プロバイダの実装
// ゲートウェイの決済インテントを作成し、結果はWebhookで受け取る
type Card struct {
	client        *Client
	webhookSecret string
}

// New は新しいカード決済プロバイダを作成する
func New(cfg config.CardProviderConfig) *Card {
	return &Card{
		client:        NewClient(cfg),
		webhookSecret: cfg.WebhookSecret,
	}
}

// Method は決済手段を返す
func (c *Card) Method() payment.Method {
	return payment.MethodCard
}

// Initiate は決済インテントを作成する
func (c *Card) Initiate(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResult, error) {
	in, err := c.client.CreateIntent(ctx, toMinorUnits(req.Amount), req.Currency,
		req.OrderNumber, req.CustomerEmail, req.Description)
	if err != nil {
		return nil, err
	}

	return &provider.InitiateResult{
		ProviderTransactionID: in.ID,
		ClientSecret:          in.ClientSecret,
	}, nil
}

// QueryStatus は決済インテントの状態を照会する
func (c *Card) QueryStatus(ctx context.Context, providerTxID string) (*provider.StatusResult, error) {
	in, err := c.client.GetIntent(ctx, providerTxID)
	if err != nil {
		return nil, err
	}

	status, reason := mapIntentStatus(in.Status, in.LastError.Message)
	return &provider.StatusResult{Status: status, FailureReason: reason}, nil
}

// webhookEvent はゲートウェイのWebhookペイロードを表す
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object intent `json:"object"`
	} `json:"data"`
}

// ParseCallback はWebhookの署名を検証し、イベントを正規化する
func (c *Card) ParseCallback(body []byte, signature string) (*provider.CallbackEvent, error) {
	if !c.verifySignature(body, signature) {
		return nil, fmt.Errorf("%w: 署名が一致しません", provider.ErrMalformedCallback)
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedCallback, err)
	}
	if ev.Data.Object.ID == "" {
		return nil, fmt.Errorf("%w: 取引IDがありません", provider.ErrMalformedCallback)
	}

	result := &provider.CallbackEvent{ProviderTransactionID: ev.Data.Object.ID}
	switch ev.Type {
	case "payment_intent.succeeded":
		result.Status = payment.StatusCompleted
	case "payment_intent.payment_failed", "payment_intent.canceled":
		result.Status = payment.StatusFailed
		result.FailureReason = ev.Data.Object.LastError.Message
		if result.FailureReason == "" {
			result.FailureReason = ev.Type
		}
	case "charge.refunded":
		result.Status = payment.StatusRefunded
	default:
		return nil, fmt.Errorf("%w: 未知のイベント種別 %q", provider.ErrMalformedCallback, ev.Type)
	}

	return result, nil
}

// Refund は決済インテントに対する返金を開始する
func (c *Card) Refund(ctx context.Context, providerTxID string, amount decimal.Decimal) error {
	return c.client.CreateRefund(ctx, providerTxID, toMinorUnits(amount))
}

func (c *Card) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// mapIntentStatus はゲートウェイの状態を内部の決済状態に対応付ける
func mapIntentStatus(status, lastError string) (payment.Status, string) {
	switch status {
	case "succeeded":
		return payment.StatusCompleted, ""
	case "processing", "requires_action", "requires_confirmation":
		return payment.StatusProcessing, ""
	case "canceled":
		return payment.StatusFailed, "canceled"
	case "requires_payment_method":
		if lastError != "" {
			return payment.StatusFailed, lastError
		}
		return payment.StatusPending, ""
	}
	return payment.StatusPending, ""
}

// toMinorUnits は金額を最小通貨単位に変換する
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
