package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method は決済手段を表す
type Method string

const (
	MethodCard        Method = "card"
	MethodMobileMoney Method = "mobile_money"
)

// Status は決済の状態を表す
// completed / failed / refunded は終端状態であり、
// refunded へは completed からのみ遷移できる
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// Payment は決済エンティティを表す
type Payment struct {
	ID                    string
	TicketID              string
	Method                Method
	Amount                decimal.Decimal
	Currency              string
	Status                Status
	ProviderTransactionID *string
	FailureReason         *string
	// ProviderMetadata はプロバイダ由来の付帯情報（領収番号・取引日時など）
	ProviderMetadata map[string]string
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPayment は新しい決済を保留状態で作成する
func NewPayment(ticketID string, method Method, amount decimal.Decimal, currency string) *Payment {
	now := time.Now()
	return &Payment{
		TicketID:  ticketID,
		Method:    method,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsFinal は終端状態かを返す
func (p *Payment) IsFinal() bool {
	switch p.Status {
	case StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// SetProviderTransactionID はプロバイダ側の取引IDを記録する
func (p *Payment) SetProviderTransactionID(txID string) {
	p.ProviderTransactionID = &txID
	p.UpdatedAt = time.Now()
}

// MergeProviderMetadata はプロバイダ由来の付帯情報を追記する
// 既存のキーは新しい値で上書きされるが、キーが消えることはない
func (p *Payment) MergeProviderMetadata(kv map[string]string) {
	if len(kv) == 0 {
		return
	}
	if p.ProviderMetadata == nil {
		p.ProviderMetadata = make(map[string]string, len(kv))
	}
	for k, v := range kv {
		p.ProviderMetadata[k] = v
	}
	p.UpdatedAt = time.Now()
}

// MarkProcessing は決済を処理中状態にする
// 既に処理中の場合は何もしない（冪等）
func (p *Payment) MarkProcessing() error {
	switch p.Status {
	case StatusProcessing:
		return nil
	case StatusPending:
		p.Status = StatusProcessing
		p.UpdatedAt = time.Now()
		return nil
	}
	return ErrAlreadyFinalized
}

// MarkCompleted は決済を完了状態にする
// 既に完了済みの場合は何もしない（冪等）
func (p *Payment) MarkCompleted() error {
	switch p.Status {
	case StatusCompleted:
		return nil
	case StatusPending, StatusProcessing:
		now := time.Now()
		p.Status = StatusCompleted
		p.CompletedAt = &now
		p.UpdatedAt = now
		return nil
	}
	return ErrAlreadyFinalized
}

// MarkFailed は決済を失敗状態にする
// 既に失敗済みの場合は何もしない（冪等）
// 完了済み・返金済みの決済を失敗に巻き戻すことはできない
func (p *Payment) MarkFailed(reason string) error {
	switch p.Status {
	case StatusFailed:
		return nil
	case StatusPending, StatusProcessing:
		p.Status = StatusFailed
		p.FailureReason = &reason
		p.UpdatedAt = time.Now()
		return nil
	}
	return ErrAlreadyFinalized
}

// MarkRefunded は決済を返金済み状態にする
// 完了済みの決済に対してのみ返金できる
func (p *Payment) MarkRefunded() error {
	switch p.Status {
	case StatusRefunded:
		return nil
	case StatusCompleted:
		p.Status = StatusRefunded
		p.UpdatedAt = time.Now()
		return nil
	}
	return ErrNotRefundable
}

// Validate は決済の検証を行う
func (p *Payment) Validate() error {
	if p.TicketID == "" {
		return ErrTicketIDRequired
	}
	if p.Method != MethodCard && p.Method != MethodMobileMoney {
		return ErrUnsupportedMethod
	}
	if p.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
