package slot

import (
	"time"

	"github.com/shopspring/decimal"
)

// AvailabilityTier は在庫枠の残量区分を表す
type AvailabilityTier string

const (
	TierAvailable AvailabilityTier = "available"
	TierLimited   AvailabilityTier = "limited"
	TierSoldOut   AvailabilityTier = "sold_out"
)

// Slot は販売可能な在庫枠エンティティを表す
// イベント1回の開催に対して1件の枠が対応する
type Slot struct {
	ID            string
	EventID       string
	EventName     string
	StartsAt      time.Time
	Venue         string
	Capacity      int
	UnitsSold     int
	PricePerUnit  decimal.Decimal
	ServiceFeePct decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSlot は新しい在庫枠を作成する
func NewSlot(eventID, eventName string, startsAt time.Time, capacity int, pricePerUnit, serviceFeePct decimal.Decimal) *Slot {
	now := time.Now()
	return &Slot{
		EventID:       eventID,
		EventName:     eventName,
		StartsAt:      startsAt,
		Capacity:      capacity,
		UnitsSold:     0,
		PricePerUnit:  pricePerUnit,
		ServiceFeePct: serviceFeePct,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Remaining は残り販売可能数を返す
func (s *Slot) Remaining() int {
	r := s.Capacity - s.UnitsSold
	if r < 0 {
		return 0
	}
	return r
}

// IsSoldOut は完売しているかを返す
func (s *Slot) IsSoldOut() bool {
	return s.UnitsSold >= s.Capacity
}

// Availability は販売数と定員から残量区分を算出する
// 80%以上で残りわずか、100%以上で完売となる
func (s *Slot) Availability() AvailabilityTier {
	if s.Capacity <= 0 || s.UnitsSold >= s.Capacity {
		return TierSoldOut
	}
	if s.UnitsSold*100 >= s.Capacity*80 {
		return TierLimited
	}
	return TierAvailable
}

// IsUpcoming は開催日時が未来かを返す
func (s *Slot) IsUpcoming(now time.Time) bool {
	return s.StartsAt.After(now)
}

// Validate は在庫枠の検証を行う
func (s *Slot) Validate() error {
	if s.EventID == "" {
		return ErrEventIDRequired
	}
	if s.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if s.PricePerUnit.IsNegative() {
		return ErrInvalidPrice
	}
	if s.ServiceFeePct.IsNegative() {
		return ErrInvalidServiceFeePct
	}
	return nil
}
