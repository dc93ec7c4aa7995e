package handler

import (
	"context"

	"github.com/Coll76/nearbyhappenings/internal/application"
	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
)

// SlotServiceInterface は在庫枠サービスのインターフェース
type SlotServiceInterface interface {
	CreateSlot(ctx context.Context, input application.CreateSlotInput) (*slot.Slot, error)
	GetSlot(ctx context.Context, id string) (*slot.Slot, error)
	ListUpcomingSlots(ctx context.Context) ([]*slot.Slot, error)
	GetRemaining(ctx context.Context, slotID string) (int, error)
}

// PurchaseServiceInterface は購入サービスのインターフェース
type PurchaseServiceInterface interface {
	Purchase(ctx context.Context, input application.PurchaseInput) (*application.PurchaseResult, error)
}

// TicketServiceInterface はチケットサービスのインターフェース
type TicketServiceInterface interface {
	GetTicket(ctx context.Context, id string) (*ticket.Ticket, error)
	GetTicketByOrderNumber(ctx context.Context, orderNumber string) (*ticket.Ticket, error)
	GetPayment(ctx context.Context, ticketID string) (*payment.Payment, error)
	GetSlotStats(ctx context.Context, slotID string) (*application.SlotStats, error)
	ListSlotTickets(ctx context.Context, slotID string) ([]*ticket.Ticket, error)
	CancelTicket(ctx context.Context, ticketID string) error
	CheckInTicket(ctx context.Context, qrCode string) (*ticket.Ticket, error)
}

// CallbackOrchestratorInterface は決済コールバック処理のインターフェース
type CallbackOrchestratorInterface interface {
	HandleCallback(ctx context.Context, method payment.Method, body []byte, signature string) error
}
