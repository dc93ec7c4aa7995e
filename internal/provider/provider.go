package provider

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
)

// InitiateRequest はプロバイダへの決済開始要求を表す
type InitiateRequest struct {
	PaymentID     string
	OrderNumber   string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	CustomerPhone string
	Description   string
}

// InitiateResult は決済開始の結果を表す
type InitiateResult struct {
	// ProviderTransactionID はプロバイダ側の取引ID
	ProviderTransactionID string
	// ClientSecret はカード決済でクライアント側の確認に使うシークレット
	ClientSecret string
	// CustomerMessage は利用者に表示する案内文（モバイルマネーのプッシュ通知等）
	CustomerMessage string
}

// StatusResult は取引状態照会の結果を表す
type StatusResult struct {
	Status        payment.Status
	FailureReason string
}

// CallbackEvent はプロバイダからのコールバックを正規化したイベントを表す
type CallbackEvent struct {
	ProviderTransactionID string
	Status                payment.Status
	FailureReason         string
	// Metadata はプロバイダが通知する付帯情報（領収番号・取引日時など）
	// 決済の ProviderMetadata へ追記のみでマージされる
	Metadata map[string]string
}

// Provider は決済プロバイダの共通インターフェース
// 実装はHTTPクライアントの詳細を隠蔽し、正規化された結果のみを返す
type Provider interface {
	// Method はこのプロバイダが扱う決済手段を返す
	Method() payment.Method

	// Initiate は決済を開始し、プロバイダ側の取引IDを返す
	// 取引IDを受け取る前に通信が失敗した場合は ErrProviderUnreachable を返す
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)

	// QueryStatus はプロバイダ側の取引IDから現在の状態を照会する
	QueryStatus(ctx context.Context, providerTxID string) (*StatusResult, error)

	// ParseCallback はコールバックの生ペイロードを検証・解析する
	// 純粋な解析処理であり、状態の更新は行わない
	ParseCallback(body []byte, signature string) (*CallbackEvent, error)

	// Refund は完了済み取引の返金を開始する
	Refund(ctx context.Context, providerTxID string, amount decimal.Decimal) error
}
