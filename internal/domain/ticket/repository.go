package ticket

import (
	"context"

	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
)

// Repository はチケットリポジトリのインターフェース
type Repository interface {
	// Create は新しいチケットを作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, t *Ticket) error

	// GetByID はIDからチケットを取得する
	GetByID(ctx context.Context, id string) (*Ticket, error)

	// GetByOrderNumber は注文番号からチケットを取得する
	GetByOrderNumber(ctx context.Context, orderNumber string) (*Ticket, error)

	// ListBySlotID は在庫枠IDからチケット一覧を取得する
	ListBySlotID(ctx context.Context, slotID string) ([]*Ticket, error)

	// UpdateStatus はチケットの状態とQRコードを更新する（トランザクション必須）
	UpdateStatus(ctx context.Context, tx transaction.Tx, t *Ticket) error

	// CountBySlotID は在庫枠ごとの状態別チケット数を取得する
	CountBySlotID(ctx context.Context, slotID string) (map[Status]int, error)
}
