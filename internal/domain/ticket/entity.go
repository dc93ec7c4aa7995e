package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status はチケットの状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusUsed      Status = "used"
)

// Ticket はチケットエンティティを表す
// 金額は購入時点の料金ポリシーで凍結され、以後のポリシー変更の影響を受けない
type Ticket struct {
	ID            string
	SlotID        string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Quantity      int
	UnitPrice     decimal.Decimal
	ServiceFeePct decimal.Decimal
	Subtotal      decimal.Decimal
	ServiceFee    decimal.Decimal
	TotalPrice    decimal.Decimal
	Currency      string
	Status        Status
	OrderNumber   string
	QRCode        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTicket は新しいチケットを保留状態で作成する
func NewTicket(slotID, name, email, phone string, quantity int) *Ticket {
	now := time.Now()
	return &Ticket{
		SlotID:        slotID,
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: phone,
		Quantity:      quantity,
		Status:        StatusPending,
		OrderNumber:   NewOrderNumber(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewOrderNumber は注文番号を生成する
func NewOrderNumber() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
}

// Confirm はチケットを確定状態にし、QRコードを発行する
// 既に確定済みの場合は何もしない（冪等）
func (t *Ticket) Confirm() error {
	if t.Status == StatusConfirmed {
		return nil
	}
	if t.Status != StatusPending {
		return ErrInvalidStatusTransition
	}
	t.Status = StatusConfirmed
	t.QRCode = fmt.Sprintf("%s-%s", t.OrderNumber,
		strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:10])
	t.UpdatedAt = time.Now()
	return nil
}

// Cancel はチケットを取消状態にする
// 使用済みチケットは取り消せない
func (t *Ticket) Cancel() error {
	switch t.Status {
	case StatusCancelled:
		return nil
	case StatusUsed:
		return ErrTicketAlreadyUsed
	}
	t.Status = StatusCancelled
	t.UpdatedAt = time.Now()
	return nil
}

// MarkUsed は入場済みとしてチケットを使用状態にする
func (t *Ticket) MarkUsed() error {
	if t.Status != StatusConfirmed {
		return ErrTicketNotConfirmed
	}
	t.Status = StatusUsed
	t.UpdatedAt = time.Now()
	return nil
}

// IsActive は在庫を占有している状態（保留・確定）かを返す
func (t *Ticket) IsActive() bool {
	return t.Status == StatusPending || t.Status == StatusConfirmed
}

// Validate はチケットの検証を行う
func (t *Ticket) Validate() error {
	if t.SlotID == "" {
		return ErrSlotIDRequired
	}
	if t.CustomerName == "" {
		return ErrCustomerNameRequired
	}
	if t.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
