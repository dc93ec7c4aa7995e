package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/pricing"
	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
	"github.com/Coll76/nearbyhappenings/internal/pkg/logger"
	"github.com/Coll76/nearbyhappenings/internal/pkg/metrics"
	"github.com/Coll76/nearbyhappenings/internal/provider"
	"go.uber.org/zap"
)

// DefaultCurrency は決済に使用する既定の通貨コード
const DefaultCurrency = "KES"

// PurchaseService はチケット購入フローを調整する
// 在庫の予約・チケット・決済の作成は単一トランザクションで確定し、
// プロバイダへの決済開始はコミット後に行う
type PurchaseService struct {
	txManager   transaction.Manager
	ledger      *CapacityLedger
	slotRepo    slot.Repository
	ticketRepo  ticket.Repository
	paymentRepo payment.Repository
	providers   *provider.Registry
	metrics     *metrics.Metrics
}

// NewPurchaseService は新しいPurchaseServiceを作成する
func NewPurchaseService(
	txManager transaction.Manager,
	ledger *CapacityLedger,
	slotRepo slot.Repository,
	ticketRepo ticket.Repository,
	paymentRepo payment.Repository,
	providers *provider.Registry,
	m *metrics.Metrics,
) *PurchaseService {
	return &PurchaseService{
		txManager:   txManager,
		ledger:      ledger,
		slotRepo:    slotRepo,
		ticketRepo:  ticketRepo,
		paymentRepo: paymentRepo,
		providers:   providers,
		metrics:     m,
	}
}

// PurchaseInput はチケット購入の入力を表す
type PurchaseInput struct {
	SlotID        string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Quantity      int
	Method        payment.Method
}

// PurchaseResult はチケット購入の結果を表す
type PurchaseResult struct {
	Ticket  *ticket.Ticket
	Payment *payment.Payment
	// ClientSecret はカード決済でクライアント側の確認に使う
	ClientSecret string
	// CustomerMessage は利用者に表示する案内文
	CustomerMessage string
}

// Purchase はチケットを購入する
// 在庫の確保は購入時点で行い、決済失敗時に解放する
func (s *PurchaseService) Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	// 決済手段の解決は在庫を触る前に行う
	prov, err := s.providers.ForMethod(input.Method)
	if err != nil {
		return nil, err
	}

	sl, err := s.slotRepo.GetByID(ctx, input.SlotID)
	if err != nil {
		return nil, err
	}

	// 購入時点の料金ポリシーで金額を凍結する
	quote, err := pricing.Compute(sl.PricePerUnit, input.Quantity, sl.ServiceFeePct)
	if err != nil {
		return nil, err
	}

	tk := ticket.NewTicket(input.SlotID, input.CustomerName, input.CustomerEmail, input.CustomerPhone, input.Quantity)
	tk.UnitPrice = quote.UnitPrice
	tk.ServiceFeePct = quote.ServiceFeePct
	tk.Subtotal = quote.Subtotal
	tk.ServiceFee = quote.ServiceFee
	tk.TotalPrice = quote.Total
	tk.Currency = DefaultCurrency
	if err := tk.Validate(); err != nil {
		return nil, err
	}

	pay := payment.NewPayment("", input.Method, quote.Total, DefaultCurrency)

	// 在庫の予約とチケット・決済の作成を不可分に確定する
	if err := s.createPendingPurchase(ctx, tk, pay); err != nil {
		s.countPurchase(err)
		return nil, err
	}
	s.ledger.InvalidateCache(ctx, input.SlotID)
	if s.metrics != nil {
		s.metrics.ActiveTickets.WithLabelValues(string(ticket.StatusPending)).Inc()
	}

	// 決済開始はロックもトランザクションも保持せずに行う
	result, err := s.initiatePayment(ctx, prov, tk, pay)
	if err != nil {
		s.compensateFailedInitiate(ctx, tk, pay, err)
		s.countPurchase(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PurchasesTotal.WithLabelValues("success").Inc()
	}
	return &PurchaseResult{
		Ticket:          tk,
		Payment:         pay,
		ClientSecret:    result.ClientSecret,
		CustomerMessage: result.CustomerMessage,
	}, nil
}

func (s *PurchaseService) createPendingPurchase(ctx context.Context, tk *ticket.Ticket, pay *payment.Payment) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.ledger.Reserve(ctx, tx, tk.SlotID, tk.Quantity); err != nil {
		return err
	}
	if err := s.ticketRepo.Create(ctx, tx, tk); err != nil {
		return err
	}
	pay.TicketID = tk.ID
	if err := pay.Validate(); err != nil {
		return err
	}
	if err := s.paymentRepo.Create(ctx, tx, pay); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

func (s *PurchaseService) initiatePayment(ctx context.Context, prov provider.Provider, tk *ticket.Ticket, pay *payment.Payment) (*provider.InitiateResult, error) {
	start := time.Now()
	result, err := prov.Initiate(ctx, &provider.InitiateRequest{
		PaymentID:     pay.ID,
		OrderNumber:   tk.OrderNumber,
		Amount:        pay.Amount,
		Currency:      pay.Currency,
		CustomerEmail: tk.CustomerEmail,
		CustomerPhone: tk.CustomerPhone,
		Description:   fmt.Sprintf("Ticket %s", tk.OrderNumber),
	})
	if s.metrics != nil {
		s.metrics.ProviderRequestDuration.
			WithLabelValues(string(prov.Method()), "initiate").
			Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	pay.SetProviderTransactionID(result.ProviderTransactionID)
	if err := pay.MarkProcessing(); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Update(ctx, pay); err != nil {
		return nil, err
	}
	return result, nil
}

// compensateFailedInitiate は決済開始に失敗した購入を巻き戻す
// チケットを取り消し、確保した在庫を解放する
func (s *PurchaseService) compensateFailedInitiate(ctx context.Context, tk *ticket.Ticket, pay *payment.Payment, cause error) {
	// プロバイダが取引IDを発行済みの場合は照合のために記録する
	var rejected *provider.RequestRejectedError
	if errors.As(cause, &rejected) && rejected.ProviderTransactionID != "" {
		pay.SetProviderTransactionID(rejected.ProviderTransactionID)
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		logger.Error("補償トランザクションの開始に失敗しました",
			zap.String("ticket_id", tk.ID), zap.Error(err))
		return
	}
	defer tx.Rollback()

	if err := pay.MarkFailed(cause.Error()); err != nil {
		logger.Error("決済の失敗記録に失敗しました", zap.String("payment_id", pay.ID), zap.Error(err))
		return
	}
	if err := s.paymentRepo.UpdateInTx(ctx, tx, pay); err != nil {
		logger.Error("決済の更新に失敗しました", zap.String("payment_id", pay.ID), zap.Error(err))
		return
	}
	if err := tk.Cancel(); err != nil {
		logger.Error("チケットの取消に失敗しました", zap.String("ticket_id", tk.ID), zap.Error(err))
		return
	}
	if err := s.ticketRepo.UpdateStatus(ctx, tx, tk); err != nil {
		logger.Error("チケットの更新に失敗しました", zap.String("ticket_id", tk.ID), zap.Error(err))
		return
	}
	if err := s.ledger.Release(ctx, tx, tk.SlotID, tk.Quantity); err != nil {
		logger.Error("在庫の解放に失敗しました", zap.String("slot_id", tk.SlotID), zap.Error(err))
		return
	}
	if err := tx.Commit(); err != nil {
		logger.Error("補償トランザクションのコミットに失敗しました",
			zap.String("ticket_id", tk.ID), zap.Error(err))
		return
	}
	s.ledger.InvalidateCache(ctx, tk.SlotID)
	trackActiveTickets(s.metrics, ticket.StatusPending, tk.Status)
}

func (s *PurchaseService) countPurchase(err error) {
	if s.metrics == nil {
		return
	}
	var insufficient *slot.InsufficientCapacityError
	status := "error"
	switch {
	case errors.Is(err, slot.ErrSoldOut):
		status = "sold_out"
	case errors.As(err, &insufficient):
		status = "insufficient_capacity"
	case errors.Is(err, provider.ErrProviderUnreachable):
		status = "payment_failed"
	default:
		var rejected *provider.RequestRejectedError
		if errors.As(err, &rejected) {
			status = "payment_failed"
		}
	}
	s.metrics.PurchasesTotal.WithLabelValues(status).Inc()
}
