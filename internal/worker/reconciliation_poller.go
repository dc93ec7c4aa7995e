package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Coll76/nearbyhappenings/internal/config"
	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/pkg/logger"
)

// PaymentReconciler は停滞中の決済を照合・確定するインターフェース
type PaymentReconciler interface {
	Reconcile(ctx context.Context, pay *payment.Payment) error
	FailAbandoned(ctx context.Context, pay *payment.Payment) error
}

// stalePaymentLister は停滞中の決済の列挙に必要な操作のみを切り出したインターフェース
type stalePaymentLister interface {
	ListStale(ctx context.Context, updatedBefore time.Time) ([]*payment.Payment, error)
}

// ReconciliationPoller はコールバックが届かなかった決済を定期的に照合するワーカー
// 取引IDを持つ決済はプロバイダへ照会し、持たないまま放置された決済は失敗として確定する
type ReconciliationPoller struct {
	paymentRepo    stalePaymentLister
	reconciler     PaymentReconciler
	interval       time.Duration
	reconcileAfter time.Duration
	abandonAfter   time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewReconciliationPoller は新しいポーラーを作成
func NewReconciliationPoller(
	paymentRepo stalePaymentLister,
	reconciler PaymentReconciler,
	cfg config.WorkerConfig,
) *ReconciliationPoller {
	return &ReconciliationPoller{
		paymentRepo:    paymentRepo,
		reconciler:     reconciler,
		interval:       cfg.PollInterval,
		reconcileAfter: cfg.ReconcileAfter,
		abandonAfter:   cfg.AbandonAfter,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start はポーラーを開始
func (p *ReconciliationPoller) Start(ctx context.Context) {
	logger.Info("決済照合ポーラー開始",
		zap.Duration("interval", p.interval),
		zap.Duration("reconcile_after", p.reconcileAfter),
		zap.Duration("abandon_after", p.abandonAfter),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("決済照合ポーラー停止（コンテキストキャンセル）")
			return
		case <-p.stopCh:
			logger.Info("決済照合ポーラー停止（シグナル受信）")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Stop はポーラーを停止
func (p *ReconciliationPoller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// poll は停滞中の決済を1周期分処理する
func (p *ReconciliationPoller) poll(ctx context.Context) {
	log := logger.Get()
	log.Debug("決済照合の開始")

	stale, err := p.paymentRepo.ListStale(ctx, time.Now().Add(-p.reconcileAfter))
	if err != nil {
		log.Error("停滞中決済の取得に失敗", zap.Error(err))
		return
	}

	var reconciled, abandoned, failed int
	for _, pay := range stale {
		if pay.ProviderTransactionID == nil {
			// 取引IDの無いまま放置された決済はコールバックで解決しようがない
			if time.Since(pay.CreatedAt) < p.abandonAfter {
				continue
			}
			if err := p.reconciler.FailAbandoned(ctx, pay); err != nil {
				log.Error("放置決済の打ち切りに失敗",
					zap.String("payment_id", pay.ID), zap.Error(err))
				failed++
				continue
			}
			abandoned++
			continue
		}

		if err := p.reconciler.Reconcile(ctx, pay); err != nil {
			// 照会の失敗は状態不明を意味する。次の周期で再試行する
			log.Warn("決済照合に失敗",
				zap.String("payment_id", pay.ID), zap.Error(err))
			failed++
			continue
		}
		reconciled++
	}

	if reconciled > 0 || abandoned > 0 || failed > 0 {
		log.Info("決済照合の完了",
			zap.Int("reconciled", reconciled),
			zap.Int("abandoned", abandoned),
			zap.Int("failed", failed))
	} else {
		log.Debug("停滞中の決済なし")
	}
}
