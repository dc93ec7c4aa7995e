package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
	"github.com/Coll76/nearbyhappenings/internal/pkg/logger"
	"github.com/Coll76/nearbyhappenings/internal/pkg/metrics"
	"github.com/Coll76/nearbyhappenings/internal/provider"
	"go.uber.org/zap"
)

// TicketService はチケットのライフサイクルを管理する
// 決済の結果に応じた確定・取消と、それに伴う在庫の解放を担う
type TicketService struct {
	txManager   transaction.Manager
	ledger      *CapacityLedger
	slotRepo    slot.Repository
	ticketRepo  ticket.Repository
	paymentRepo payment.Repository
	providers   *provider.Registry
	metrics     *metrics.Metrics
}

// NewTicketService は新しいTicketServiceを作成する
func NewTicketService(
	txManager transaction.Manager,
	ledger *CapacityLedger,
	slotRepo slot.Repository,
	ticketRepo ticket.Repository,
	paymentRepo payment.Repository,
	providers *provider.Registry,
	m *metrics.Metrics,
) *TicketService {
	return &TicketService{
		txManager:   txManager,
		ledger:      ledger,
		slotRepo:    slotRepo,
		ticketRepo:  ticketRepo,
		paymentRepo: paymentRepo,
		providers:   providers,
		metrics:     m,
	}
}

// GetTicket はIDからチケットを取得する
func (s *TicketService) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	return s.ticketRepo.GetByID(ctx, id)
}

// GetTicketByOrderNumber は注文番号からチケットを取得する
func (s *TicketService) GetTicketByOrderNumber(ctx context.Context, orderNumber string) (*ticket.Ticket, error) {
	return s.ticketRepo.GetByOrderNumber(ctx, orderNumber)
}

// GetPayment はチケットに紐づく決済を取得する
func (s *TicketService) GetPayment(ctx context.Context, ticketID string) (*payment.Payment, error) {
	return s.paymentRepo.GetByTicketID(ctx, ticketID)
}

// SlotStats は在庫枠ごとの状態別チケット数を表す
type SlotStats struct {
	Counts map[ticket.Status]int
}

// GetSlotStats は在庫枠のチケット集計を取得する
func (s *TicketService) GetSlotStats(ctx context.Context, slotID string) (*SlotStats, error) {
	counts, err := s.ticketRepo.CountBySlotID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	return &SlotStats{Counts: counts}, nil
}

// ListSlotTickets は在庫枠のチケット一覧を取得する
func (s *TicketService) ListSlotTickets(ctx context.Context, slotID string) ([]*ticket.Ticket, error) {
	return s.ticketRepo.ListBySlotID(ctx, slotID)
}

// CancelTicket は利用者の申し出によりチケットを取り消す
// 決済が完了済みの場合はプロバイダへの返金を伴う
// 使用済みチケットと開催日時を過ぎた在庫枠のチケットは取り消せない
func (s *TicketService) CancelTicket(ctx context.Context, ticketID string) error {
	tk, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if tk.Status == ticket.StatusCancelled {
		return nil
	}
	if tk.Status == ticket.StatusUsed {
		return ticket.ErrTicketAlreadyUsed
	}

	sl, err := s.slotRepo.GetByID(ctx, tk.SlotID)
	if err != nil {
		return err
	}
	if !sl.IsUpcoming(time.Now()) {
		return ticket.ErrCancelWindowClosed
	}
	prev := tk.Status

	pay, err := s.paymentRepo.GetByTicketID(ctx, ticketID)
	if err != nil && !errors.Is(err, payment.ErrPaymentNotFound) {
		return err
	}

	// 返金はトランザクションの外で行う
	// 返金後の記録に失敗しても、返金済みの事実が失われないよう先に実行する
	refunded := false
	if pay != nil && pay.Status == payment.StatusCompleted {
		if err := s.refund(ctx, pay); err != nil {
			return fmt.Errorf("返金に失敗: %w", err)
		}
		refunded = true
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// コールバック処理と同じく決済→チケット→在庫の順で書き込む
	// 読み取り後にコールバックが状態を進めていた場合は条件付き更新が弾き、
	// 取消全体を中断する
	if pay != nil {
		prevPay := pay.Status
		switch {
		case refunded:
			if err := pay.MarkRefunded(); err != nil {
				return err
			}
		case !pay.IsFinal():
			if err := pay.MarkFailed("購入者による取消"); err != nil {
				return err
			}
		}
		if pay.Status != prevPay {
			if err := s.paymentRepo.UpdateInTxFromStatus(ctx, tx, pay, prevPay); err != nil {
				return err
			}
			s.countTransition(pay)
		}
	}

	if err := tk.Cancel(); err != nil {
		return err
	}
	if err := s.ticketRepo.UpdateStatus(ctx, tx, tk); err != nil {
		return err
	}
	if err := s.ledger.Release(ctx, tx, tk.SlotID, tk.Quantity); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	s.ledger.InvalidateCache(ctx, tk.SlotID)
	trackActiveTickets(s.metrics, prev, tk.Status)
	return nil
}

func (s *TicketService) refund(ctx context.Context, pay *payment.Payment) error {
	prov, err := s.providers.ForMethod(pay.Method)
	if err != nil {
		return err
	}
	if pay.ProviderTransactionID == nil {
		return payment.ErrUnknownTransaction
	}

	start := time.Now()
	err = prov.Refund(ctx, *pay.ProviderTransactionID, pay.Amount)
	if s.metrics != nil {
		s.metrics.ProviderRequestDuration.
			WithLabelValues(string(pay.Method), "refund").
			Observe(time.Since(start).Seconds())
	}
	return err
}

// CheckInTicket はQRコードの提示を受けてチケットを使用済みにする
func (s *TicketService) CheckInTicket(ctx context.Context, qrCode string) (*ticket.Ticket, error) {
	tk, err := s.findByQRCode(ctx, qrCode)
	if err != nil {
		return nil, err
	}
	if err := tk.MarkUsed(); err != nil {
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.ticketRepo.UpdateStatus(ctx, tx, tk); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	trackActiveTickets(s.metrics, ticket.StatusConfirmed, tk.Status)
	return tk, nil
}

// findByQRCode はQRコードからチケットを引き当てる
// QRコードは注文番号を接頭辞に持つ
func (s *TicketService) findByQRCode(ctx context.Context, qrCode string) (*ticket.Ticket, error) {
	orderNumber := qrCode
	if len(qrCode) > 10 {
		orderNumber = qrCode[:10]
	}
	tk, err := s.ticketRepo.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if tk.QRCode != qrCode {
		return nil, ticket.ErrTicketNotFound
	}
	return tk, nil
}

// OnPaymentCompleted は決済完了を受けてチケットを確定する
// 呼び出し元のトランザクション内で実行される
func (s *TicketService) OnPaymentCompleted(ctx context.Context, tx transaction.Tx, ticketID string) error {
	tk, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	prev := tk.Status
	if err := tk.Confirm(); err != nil {
		return err
	}
	if err := s.ticketRepo.UpdateStatus(ctx, tx, tk); err != nil {
		return err
	}
	trackActiveTickets(s.metrics, prev, tk.Status)
	return nil
}

// OnPaymentFailed は決済失敗を受けてチケットを取り消し、在庫を解放する
func (s *TicketService) OnPaymentFailed(ctx context.Context, tx transaction.Tx, ticketID string) error {
	tk, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if tk.Status == ticket.StatusCancelled {
		return nil
	}
	prev := tk.Status
	if err := tk.Cancel(); err != nil {
		return err
	}
	if err := s.ticketRepo.UpdateStatus(ctx, tx, tk); err != nil {
		return err
	}
	trackActiveTickets(s.metrics, prev, tk.Status)
	return s.ledger.Release(ctx, tx, tk.SlotID, tk.Quantity)
}

// OnPaymentRefunded はプロバイダ側で成立した返金を受けてチケットを取り消す
// 使用済みチケットの在庫は既に消費されているため解放しない
func (s *TicketService) OnPaymentRefunded(ctx context.Context, tx transaction.Tx, ticketID string) error {
	tk, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if tk.Status == ticket.StatusCancelled {
		return nil
	}
	prev := tk.Status
	if err := tk.Cancel(); err != nil {
		if errors.Is(err, ticket.ErrTicketAlreadyUsed) {
			logger.Warn("使用済みチケットの決済が返金されました",
				zap.String("ticket_id", ticketID))
			return nil
		}
		return err
	}
	if err := s.ticketRepo.UpdateStatus(ctx, tx, tk); err != nil {
		return err
	}
	trackActiveTickets(s.metrics, prev, tk.Status)
	return s.ledger.Release(ctx, tx, tk.SlotID, tk.Quantity)
}

func (s *TicketService) countTransition(pay *payment.Payment) {
	if s.metrics != nil {
		s.metrics.PaymentTransitionsTotal.
			WithLabelValues(string(pay.Method), string(pay.Status)).Inc()
	}
}

// trackActiveTickets はアクティブチケット数のゲージを状態遷移に合わせて増減する
// pending と confirmed のみが在庫を占有している状態として計上される
func trackActiveTickets(m *metrics.Metrics, from, to ticket.Status) {
	if m == nil || from == to {
		return
	}
	if from == ticket.StatusPending || from == ticket.StatusConfirmed {
		m.ActiveTickets.WithLabelValues(string(from)).Dec()
	}
	if to == ticket.StatusPending || to == ticket.StatusConfirmed {
		m.ActiveTickets.WithLabelValues(string(to)).Inc()
	}
}
