package slot

import (
	"errors"
	"fmt"
)

// Slot ドメインのエラー定義
var (
	ErrSlotNotFound         = errors.New("在庫枠が見つかりません")
	ErrSoldOut              = errors.New("完売しています")
	ErrEventIDRequired      = errors.New("イベントIDは必須です")
	ErrInvalidCapacity      = errors.New("定員は1以上である必要があります")
	ErrInvalidPrice         = errors.New("価格は0以上である必要があります")
	ErrInvalidServiceFeePct = errors.New("手数料率は0以上である必要があります")
	ErrCapacityUnderflow    = errors.New("販売数が解放数を下回ります")
)

// InsufficientCapacityError は残数不足を表すエラー
// 要求数は満たせないが残数が0ではない場合に返す
type InsufficientCapacityError struct {
	Requested int
	Remaining int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("残数が不足しています: 要求=%d 残り=%d", e.Requested, e.Remaining)
}
