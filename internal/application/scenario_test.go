package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
	"github.com/Coll76/nearbyhappenings/internal/provider"
)

// TestScenario_FullPurchaseFlow は購入から入場までの完全なフローを確認する
// 購入 → 決済完了コールバック → チケット確定 → 入場
func TestScenario_FullPurchaseFlow(t *testing.T) {
	env := newTestEnv()
	sl := env.createSlot(100, 0)
	ctx := context.Background()

	// 1. 購入
	result, err := env.purchase.Purchase(ctx, purchaseInput(sl.ID, 2, payment.MethodMobileMoney))
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusPending, result.Ticket.Status)

	// 2. 決済完了コールバック
	err = env.orchestra.applyEvent(ctx, payment.MethodMobileMoney,
		completedEvent(*result.Payment.ProviderTransactionID))
	require.NoError(t, err)

	// 3. チケットが確定しQRコードが発行される
	tk, err := env.tickets.GetTicket(ctx, result.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusConfirmed, tk.Status)
	require.NotEmpty(t, tk.QRCode)

	// 4. 入場
	used, err := env.tickets.CheckInTicket(ctx, tk.QRCode)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusUsed, used.Status)

	// 在庫は確保されたまま
	updated, _ := env.slotRepo.GetByID(ctx, sl.ID)
	assert.Equal(t, 2, updated.UnitsSold)
}

// TestScenario_LastUnitContention は残り1枚を複数の購入者が取り合うシナリオ
// 成功するのはちょうど1人で、定員を超えない
func TestScenario_LastUnitContention(t *testing.T) {
	env := newTestEnv()
	sl := env.createSlot(10, 9)
	ctx := context.Background()

	const buyers = 5
	var successCount, soldOutCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.purchase.Purchase(ctx, purchaseInput(sl.ID, 1, payment.MethodCard))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, slot.ErrSoldOut):
				soldOutCount.Add(1)
			default:
				t.Errorf("予期しないエラー: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, int32(buyers-1), soldOutCount.Load())

	updated, _ := env.slotRepo.GetByID(ctx, sl.ID)
	assert.Equal(t, 10, updated.UnitsSold)
}

// TestScenario_PurchaseStorm は定員を超える同時購入でも売り越さないことを確認する
func TestScenario_PurchaseStorm(t *testing.T) {
	env := newTestEnv()
	sl := env.createSlot(10, 0)
	ctx := context.Background()

	const buyers = 30
	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.purchase.Purchase(ctx, purchaseInput(sl.ID, 1, payment.MethodCard)); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), successCount.Load())

	updated, _ := env.slotRepo.GetByID(ctx, sl.ID)
	assert.Equal(t, 10, updated.UnitsSold)
	assert.True(t, updated.IsSoldOut())
}

// TestScenario_FailedPaymentFreesCapacityForNextBuyer は失敗した決済の在庫が
// 次の購入者に回ることを確認する
func TestScenario_FailedPaymentFreesCapacityForNextBuyer(t *testing.T) {
	env := newTestEnv()
	sl := env.createSlot(1, 0)
	ctx := context.Background()

	// 1人目が購入し、決済に失敗する
	first, err := env.purchase.Purchase(ctx, purchaseInput(sl.ID, 1, payment.MethodMobileMoney))
	require.NoError(t, err)

	// この時点では完売
	_, err = env.purchase.Purchase(ctx, purchaseInput(sl.ID, 1, payment.MethodMobileMoney))
	assert.ErrorIs(t, err, slot.ErrSoldOut)

	// 決済失敗のコールバックで在庫が解放される
	err = env.orchestra.applyEvent(ctx, payment.MethodMobileMoney, &provider.CallbackEvent{
		ProviderTransactionID: *first.Payment.ProviderTransactionID,
		Status:                payment.StatusFailed,
		FailureReason:         "Request cancelled by user",
	})
	require.NoError(t, err)

	// 2人目が購入できる
	second, err := env.purchase.Purchase(ctx, purchaseInput(sl.ID, 1, payment.MethodMobileMoney))
	require.NoError(t, err)
	assert.NotEqual(t, first.Ticket.ID, second.Ticket.ID)

	updated, _ := env.slotRepo.GetByID(ctx, sl.ID)
	assert.Equal(t, 1, updated.UnitsSold)
}
