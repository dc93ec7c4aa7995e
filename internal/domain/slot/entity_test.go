package slot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTestSlot(capacity, sold int) *Slot {
	s := NewSlot("event-1", "夏祭り", time.Now().Add(24*time.Hour), capacity,
		decimal.NewFromInt(100), decimal.NewFromInt(15))
	s.UnitsSold = sold
	return s
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 10, newTestSlot(10, 0).Remaining())
	assert.Equal(t, 1, newTestSlot(10, 9).Remaining())
	assert.Equal(t, 0, newTestSlot(10, 10).Remaining())
	// 不変条件違反のデータでも負数は返さない
	assert.Equal(t, 0, newTestSlot(10, 12).Remaining())
}

func TestIsSoldOut(t *testing.T) {
	assert.False(t, newTestSlot(10, 9).IsSoldOut())
	assert.True(t, newTestSlot(10, 10).IsSoldOut())
}

func TestAvailability(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		sold     int
		want     AvailabilityTier
	}{
		{"空きあり", 100, 0, TierAvailable},
		{"80%未満", 100, 79, TierAvailable},
		{"ちょうど80%", 100, 80, TierLimited},
		{"残りわずか", 100, 99, TierLimited},
		{"完売", 100, 100, TierSoldOut},
		{"定員0", 0, 0, TierSoldOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newTestSlot(tt.capacity, tt.sold).Availability())
		})
	}
}

func TestIsUpcoming(t *testing.T) {
	now := time.Now()
	s := newTestSlot(10, 0)
	s.StartsAt = now.Add(time.Hour)
	assert.True(t, s.IsUpcoming(now))

	s.StartsAt = now.Add(-time.Hour)
	assert.False(t, s.IsUpcoming(now))
}

func TestValidate(t *testing.T) {
	s := newTestSlot(10, 0)
	assert.NoError(t, s.Validate())

	s2 := newTestSlot(10, 0)
	s2.EventID = ""
	assert.ErrorIs(t, s2.Validate(), ErrEventIDRequired)

	s3 := newTestSlot(0, 0)
	assert.ErrorIs(t, s3.Validate(), ErrInvalidCapacity)

	s4 := newTestSlot(10, 0)
	s4.PricePerUnit = decimal.NewFromInt(-1)
	assert.ErrorIs(t, s4.Validate(), ErrInvalidPrice)

	s5 := newTestSlot(10, 0)
	s5.ServiceFeePct = decimal.NewFromInt(-5)
	assert.ErrorIs(t, s5.Validate(), ErrInvalidServiceFeePct)
}

func TestInsufficientCapacityError(t *testing.T) {
	err := &InsufficientCapacityError{Requested: 3, Remaining: 1}
	assert.Contains(t, err.Error(), "要求=3")
	assert.Contains(t, err.Error(), "残り=1")
}
