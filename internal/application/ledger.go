package application

import (
	"context"

	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
	"github.com/Coll76/nearbyhappenings/internal/pkg/logger"
	"github.com/Coll76/nearbyhappenings/internal/pkg/metrics"
	"go.uber.org/zap"
)

// availabilityCache は残数キャッシュの無効化に必要な操作のみを切り出したインターフェース
type availabilityCache interface {
	Invalidate(ctx context.Context, slotID string) error
}

// CapacityLedger は在庫枠の販売数を管理する
// 予約・解放は呼び出し元のトランザクション内で実行され、
// チケットや決済の更新と不可分に確定する
type CapacityLedger struct {
	slotRepo slot.Repository
	cache    availabilityCache
	metrics  *metrics.Metrics
}

// NewCapacityLedger は新しいCapacityLedgerを作成する
func NewCapacityLedger(slotRepo slot.Repository, cache availabilityCache, m *metrics.Metrics) *CapacityLedger {
	return &CapacityLedger{slotRepo: slotRepo, cache: cache, metrics: m}
}

// Reserve は残数を検査しつつ販売数を加算する
// 検査と加算は単一の更新として実行され、同時実行下でも定員を超えない
func (l *CapacityLedger) Reserve(ctx context.Context, tx transaction.Tx, slotID string, quantity int) error {
	if err := l.slotRepo.ReserveUnits(ctx, tx, slotID, quantity); err != nil {
		l.count("reserve", "failed")
		return err
	}
	l.count("reserve", "success")
	return nil
}

// Release は販売数を減算する
// 失敗・取消・返金によって在庫を戻す際に使用する
func (l *CapacityLedger) Release(ctx context.Context, tx transaction.Tx, slotID string, quantity int) error {
	if err := l.slotRepo.ReleaseUnits(ctx, tx, slotID, quantity); err != nil {
		l.count("release", "failed")
		return err
	}
	l.count("release", "success")
	return nil
}

// InvalidateCache は残数キャッシュを無効化する
// 販売数を変更したトランザクションのコミット後に呼び出す
func (l *CapacityLedger) InvalidateCache(ctx context.Context, slotID string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, slotID); err != nil {
		// キャッシュはTTLで失効するため、無効化の失敗は致命的ではない
		logger.Warn("残数キャッシュの無効化に失敗しました",
			zap.String("slot_id", slotID), zap.Error(err))
	}
}

func (l *CapacityLedger) count(operation, status string) {
	if l.metrics != nil {
		l.metrics.CapacityOperationsTotal.WithLabelValues(operation, status).Inc()
	}
}
