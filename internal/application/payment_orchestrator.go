package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
	redislock "github.com/Coll76/nearbyhappenings/internal/infrastructure/redis"
	"github.com/Coll76/nearbyhappenings/internal/pkg/logger"
	"github.com/Coll76/nearbyhappenings/internal/pkg/metrics"
	"github.com/Coll76/nearbyhappenings/internal/provider"
	"go.uber.org/zap"
)

// PaymentLifecycle は決済結果を受けたチケット側の処理を表す
// 各メソッドは呼び出し元のトランザクション内で実行される
type PaymentLifecycle interface {
	OnPaymentCompleted(ctx context.Context, tx transaction.Tx, ticketID string) error
	OnPaymentFailed(ctx context.Context, tx transaction.Tx, ticketID string) error
	OnPaymentRefunded(ctx context.Context, tx transaction.Tx, ticketID string) error
}

// PaymentOrchestrator はプロバイダからの通知・照会結果を決済の状態遷移に変換する
// 同一コールバックの重複配信・順序逆転に耐える
type PaymentOrchestrator struct {
	txManager   transaction.Manager
	paymentRepo payment.Repository
	providers   *provider.Registry
	lifecycle   PaymentLifecycle
	lockManager *redislock.LockManager
	metrics     *metrics.Metrics

	// コールバックが決済の記録より先に到着した場合の再探索設定
	lookupWindow   time.Duration
	lookupInterval time.Duration
}

// NewPaymentOrchestrator は新しいPaymentOrchestratorを作成する
func NewPaymentOrchestrator(
	txManager transaction.Manager,
	paymentRepo payment.Repository,
	providers *provider.Registry,
	lifecycle PaymentLifecycle,
	lockManager *redislock.LockManager,
	m *metrics.Metrics,
) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		txManager:      txManager,
		paymentRepo:    paymentRepo,
		providers:      providers,
		lifecycle:      lifecycle,
		lockManager:    lockManager,
		metrics:        m,
		lookupWindow:   5 * time.Second,
		lookupInterval: 250 * time.Millisecond,
	}
}

// HandleCallback はプロバイダからのコールバックを処理する
// 解析に失敗した場合は状態を一切変更しない
func (o *PaymentOrchestrator) HandleCallback(ctx context.Context, method payment.Method, body []byte, signature string) error {
	prov, err := o.providers.ForMethod(method)
	if err != nil {
		return err
	}

	ev, err := prov.ParseCallback(body, signature)
	if err != nil {
		o.countCallback(method, "malformed")
		return err
	}

	return o.applyEvent(ctx, method, ev)
}

func (o *PaymentOrchestrator) applyEvent(ctx context.Context, method payment.Method, ev *provider.CallbackEvent) error {
	// コールバックが決済の記録より先に到着することがあるため、
	// 一定時間だけ再探索してから未知の取引と判定する
	if _, err := o.lookupPayment(ctx, ev.ProviderTransactionID); err != nil {
		o.countCallback(method, "unknown")
		return err
	}

	// 同一取引のコールバックを複数インスタンスで同時に処理しない
	if o.lockManager != nil {
		lock, err := o.lockManager.AcquireLockWithRetry(ctx,
			"payment:tx:"+ev.ProviderTransactionID, 10*time.Second, 3, 100*time.Millisecond)
		if err != nil {
			return fmt.Errorf("コールバックのロック取得に失敗: %w", err)
		}
		defer lock.Release(ctx)
	}

	// ロック取得後に再読込し、最新の状態で判定する
	pay, err := o.paymentRepo.GetByProviderTransactionID(ctx, ev.ProviderTransactionID)
	if err != nil {
		return err
	}

	// 領収番号などの付帯情報は状態遷移と同じトランザクションで保存される
	pay.MergeProviderMetadata(ev.Metadata)

	result, err := o.transition(ctx, pay, ev.Status, ev.FailureReason)
	o.countCallback(method, result)
	return err
}

// transition は決済を通知された状態へ遷移させ、チケット側の処理を同一トランザクションで行う
// 戻り値はメトリクス用の処理結果ラベル
func (o *PaymentOrchestrator) transition(ctx context.Context, pay *payment.Payment, to payment.Status, failureReason string) (string, error) {
	// 重複配信: 既に同じ状態であれば何もしない
	if pay.Status == to {
		return "duplicate", nil
	}

	var terr error
	switch to {
	case payment.StatusCompleted:
		terr = pay.MarkCompleted()
	case payment.StatusFailed:
		terr = pay.MarkFailed(failureReason)
	case payment.StatusRefunded:
		terr = pay.MarkRefunded()
	case payment.StatusProcessing:
		terr = pay.MarkProcessing()
	default:
		return "error", fmt.Errorf("不正な遷移先です: %s", to)
	}
	if terr != nil {
		// 終端状態に達した後の矛盾する通知は記録して無視する
		if errors.Is(terr, payment.ErrAlreadyFinalized) || errors.Is(terr, payment.ErrNotRefundable) {
			logger.Warn("終端状態の決済への通知を無視します",
				zap.String("payment_id", pay.ID),
				zap.String("current", string(pay.Status)),
				zap.String("notified", string(to)))
			return "conflict", nil
		}
		return "error", terr
	}

	tx, err := o.txManager.Begin(ctx)
	if err != nil {
		return "error", fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := o.paymentRepo.UpdateInTx(ctx, tx, pay); err != nil {
		return "error", err
	}

	switch to {
	case payment.StatusCompleted:
		err = o.lifecycle.OnPaymentCompleted(ctx, tx, pay.TicketID)
	case payment.StatusFailed:
		err = o.lifecycle.OnPaymentFailed(ctx, tx, pay.TicketID)
	case payment.StatusRefunded:
		err = o.lifecycle.OnPaymentRefunded(ctx, tx, pay.TicketID)
	}
	if err != nil {
		return "error", err
	}

	if err := tx.Commit(); err != nil {
		return "error", fmt.Errorf("コミットに失敗: %w", err)
	}

	if o.metrics != nil {
		o.metrics.PaymentTransitionsTotal.
			WithLabelValues(string(pay.Method), string(pay.Status)).Inc()
	}
	logger.Info("決済の状態を更新しました",
		zap.String("payment_id", pay.ID),
		zap.String("status", string(pay.Status)))
	return "applied", nil
}

// lookupPayment はプロバイダ側の取引IDから決済を探す
// 見つからない場合は lookupWindow の間リトライし、それでも見つからなければ
// ErrUnknownTransaction を返す
func (o *PaymentOrchestrator) lookupPayment(ctx context.Context, providerTxID string) (*payment.Payment, error) {
	deadline := time.Now().Add(o.lookupWindow)
	for {
		pay, err := o.paymentRepo.GetByProviderTransactionID(ctx, providerTxID)
		if err == nil {
			return pay, nil
		}
		if !errors.Is(err, payment.ErrPaymentNotFound) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: provider_tx_id=%s", payment.ErrUnknownTransaction, providerTxID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.lookupInterval):
		}
	}
}

// Reconcile はプロバイダへ状態を照会し、必要なら決済を遷移させる
// コールバックの欠落を補う手段であり、照会の失敗は決済の失敗を意味しない
func (o *PaymentOrchestrator) Reconcile(ctx context.Context, pay *payment.Payment) error {
	if pay.ProviderTransactionID == nil {
		return payment.ErrUnknownTransaction
	}

	prov, err := o.providers.ForMethod(pay.Method)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := prov.QueryStatus(ctx, *pay.ProviderTransactionID)
	if o.metrics != nil {
		o.metrics.ProviderRequestDuration.
			WithLabelValues(string(pay.Method), "query_status").
			Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// 到達不能は状態不明を意味する。次回のポーリングで再試行する
		return err
	}

	if result.Status == pay.Status || result.Status == payment.StatusPending {
		return nil
	}
	_, err = o.transition(ctx, pay, result.Status, result.FailureReason)
	return err
}

// FailAbandoned は進展の見込みがない決済を失敗として確定する
// 取引IDが無いまま放置された決済に使用する
func (o *PaymentOrchestrator) FailAbandoned(ctx context.Context, pay *payment.Payment) error {
	_, err := o.transition(ctx, pay, payment.StatusFailed, "一定時間進展がなかったため打ち切りました")
	return err
}

func (o *PaymentOrchestrator) countCallback(method payment.Method, result string) {
	if o.metrics != nil {
		o.metrics.CallbacksTotal.WithLabelValues(string(method), result).Inc()
	}
}
