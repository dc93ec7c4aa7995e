package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	rediscache "github.com/Coll76/nearbyhappenings/internal/infrastructure/redis"
)

// SlotService は在庫枠の登録・参照を提供する
type SlotService struct {
	slotRepo slot.Repository
	cache    *rediscache.AvailabilityCache
	cacheTTL time.Duration
}

// NewSlotService は新しいSlotServiceを作成する
func NewSlotService(slotRepo slot.Repository, cache *rediscache.AvailabilityCache) *SlotService {
	return &SlotService{
		slotRepo: slotRepo,
		cache:    cache,
		cacheTTL: 30 * time.Second,
	}
}

// CreateSlotInput は在庫枠の登録入力を表す
type CreateSlotInput struct {
	EventID       string
	EventName     string
	StartsAt      time.Time
	Venue         string
	Capacity      int
	PricePerUnit  string
	ServiceFeePct string
}

// CreateSlot は新しい在庫枠を登録する
func (s *SlotService) CreateSlot(ctx context.Context, input CreateSlotInput) (*slot.Slot, error) {
	price, feePct, err := parseMoneyInputs(input.PricePerUnit, input.ServiceFeePct)
	if err != nil {
		return nil, err
	}

	sl := slot.NewSlot(input.EventID, input.EventName, input.StartsAt, input.Capacity, price, feePct)
	sl.Venue = input.Venue
	if err := sl.Validate(); err != nil {
		return nil, err
	}

	if err := s.slotRepo.Create(ctx, sl); err != nil {
		return nil, fmt.Errorf("在庫枠の登録に失敗: %w", err)
	}
	return sl, nil
}

// GetSlot はIDから在庫枠を取得する
func (s *SlotService) GetSlot(ctx context.Context, id string) (*slot.Slot, error) {
	return s.slotRepo.GetByID(ctx, id)
}

// ListUpcomingSlots は今後開催される在庫枠一覧を取得する
func (s *SlotService) ListUpcomingSlots(ctx context.Context) ([]*slot.Slot, error) {
	return s.slotRepo.ListUpcoming(ctx, time.Now())
}

// GetRemaining は在庫枠の残数を取得する
// キャッシュがあればそれを返し、なければDBから取得してキャッシュする
func (s *SlotService) GetRemaining(ctx context.Context, slotID string) (int, error) {
	if s.cache != nil {
		if remaining, err := s.cache.GetRemaining(ctx, slotID); err == nil {
			return remaining, nil
		}
	}

	sl, err := s.slotRepo.GetByID(ctx, slotID)
	if err != nil {
		return 0, err
	}

	remaining := sl.Remaining()
	if s.cache != nil {
		// 保存の失敗は無視してよい。次回はDBから読み直すだけ
		_ = s.cache.SetRemaining(ctx, slotID, remaining, s.cacheTTL)
	}
	return remaining, nil
}

func parseMoneyInputs(price, feePct string) (decimal.Decimal, decimal.Decimal, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("価格の形式が不正です: %w", err)
	}
	f, err := decimal.NewFromString(feePct)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("手数料率の形式が不正です: %w", err)
	}
	return p, f, nil
}
