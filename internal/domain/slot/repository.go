package slot

import (
	"context"
	"time"

	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
)

// Repository は在庫枠リポジトリのインターフェース
type Repository interface {
	// Create は新しい在庫枠を作成する
	Create(ctx context.Context, s *Slot) error

	// GetByID はIDから在庫枠を取得する
	GetByID(ctx context.Context, id string) (*Slot, error)

	// GetByIDForUpdate はIDから在庫枠を行ロック付きで取得する（トランザクション必須）
	GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*Slot, error)

	// ListUpcoming は指定日時以降に開催される在庫枠一覧を取得する
	ListUpcoming(ctx context.Context, after time.Time) ([]*Slot, error)

	// ListByEventID はイベントIDから在庫枠一覧を取得する
	ListByEventID(ctx context.Context, eventID string) ([]*Slot, error)

	// ReserveUnits は残数を検査しつつ販売数を加算する（トランザクション必須）
	// 残数不足の場合は1行も更新せず ErrSoldOut または InsufficientCapacityError を返す
	ReserveUnits(ctx context.Context, tx transaction.Tx, id string, quantity int) error

	// ReleaseUnits は販売数を減算する（トランザクション必須）
	// 販売数が負になる場合は ErrCapacityUnderflow を返す
	ReleaseUnits(ctx context.Context, tx transaction.Tx, id string, quantity int) error
}
