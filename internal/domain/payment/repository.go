package payment

import (
	"context"
	"time"

	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
)

// Repository は決済リポジトリのインターフェース
type Repository interface {
	// Create は新しい決済を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, p *Payment) error

	// GetByID はIDから決済を取得する
	GetByID(ctx context.Context, id string) (*Payment, error)

	// GetByTicketID はチケットIDから決済を取得する
	GetByTicketID(ctx context.Context, ticketID string) (*Payment, error)

	// GetByProviderTransactionID はプロバイダ側の取引IDから決済を取得する
	GetByProviderTransactionID(ctx context.Context, providerTxID string) (*Payment, error)

	// Update は決済の状態・取引ID・失敗理由を更新する
	Update(ctx context.Context, p *Payment) error

	// UpdateInTx は決済をトランザクション内で更新する
	UpdateInTx(ctx context.Context, tx transaction.Tx, p *Payment) error

	// UpdateInTxFromStatus は保存されている状態が expected の場合のみ決済を更新する
	// 読み取り後に他の処理が状態を進めていた場合は ErrStatusConflict を返す
	UpdateInTxFromStatus(ctx context.Context, tx transaction.Tx, p *Payment, expected Status) error

	// ListStale は指定時刻より前に更新され、終端状態に達していない決済一覧を取得する
	ListStale(ctx context.Context, updatedBefore time.Time) ([]*Payment, error)
}
