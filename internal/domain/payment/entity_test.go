package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment() *Payment {
	return NewPayment("ticket-1", MethodMobileMoney, decimal.NewFromInt(230), "KES")
}

func TestNewPayment(t *testing.T) {
	p := newTestPayment()

	assert.Equal(t, StatusPending, p.Status)
	assert.Nil(t, p.ProviderTransactionID)
	assert.Nil(t, p.CompletedAt)
	assert.False(t, p.IsFinal())
}

func TestMarkProcessing(t *testing.T) {
	p := newTestPayment()

	require.NoError(t, p.MarkProcessing())
	assert.Equal(t, StatusProcessing, p.Status)

	// 冪等
	require.NoError(t, p.MarkProcessing())
}

func TestMarkCompleted(t *testing.T) {
	p := newTestPayment()

	require.NoError(t, p.MarkCompleted())
	assert.Equal(t, StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, p.IsFinal())

	// 冪等: 完了時刻は変化しない
	completedAt := *p.CompletedAt
	require.NoError(t, p.MarkCompleted())
	assert.Equal(t, completedAt, *p.CompletedAt)
}

func TestMarkFailed(t *testing.T) {
	p := newTestPayment()
	require.NoError(t, p.MarkProcessing())

	require.NoError(t, p.MarkFailed("insufficient funds"))
	assert.Equal(t, StatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)
	assert.Equal(t, "insufficient funds", *p.FailureReason)

	// 冪等
	require.NoError(t, p.MarkFailed("other reason"))
	assert.Equal(t, "insufficient funds", *p.FailureReason)
}

func TestMarkFailed_AfterCompleted(t *testing.T) {
	p := newTestPayment()
	require.NoError(t, p.MarkCompleted())

	// 完了後に到着した失敗通知は巻き戻さない
	assert.ErrorIs(t, p.MarkFailed("late failure"), ErrAlreadyFinalized)
	assert.Equal(t, StatusCompleted, p.Status)
}

func TestMarkCompleted_AfterFailed(t *testing.T) {
	p := newTestPayment()
	require.NoError(t, p.MarkFailed("declined"))

	assert.ErrorIs(t, p.MarkCompleted(), ErrAlreadyFinalized)
	assert.Equal(t, StatusFailed, p.Status)
}

func TestMarkRefunded(t *testing.T) {
	p := newTestPayment()

	// 未完了の決済は返金できない
	assert.ErrorIs(t, p.MarkRefunded(), ErrNotRefundable)

	require.NoError(t, p.MarkCompleted())
	require.NoError(t, p.MarkRefunded())
	assert.Equal(t, StatusRefunded, p.Status)

	// 冪等
	require.NoError(t, p.MarkRefunded())
}

func TestSetProviderTransactionID(t *testing.T) {
	p := newTestPayment()
	p.SetProviderTransactionID("MPESA-TX-123")

	require.NotNil(t, p.ProviderTransactionID)
	assert.Equal(t, "MPESA-TX-123", *p.ProviderTransactionID)
}

func TestMergeProviderMetadata(t *testing.T) {
	p := newTestPayment()

	p.MergeProviderMetadata(map[string]string{"receipt_number": "RKT123"})
	p.MergeProviderMetadata(map[string]string{"transaction_date": "20250831143000"})

	// 追記のみで既存のキーは失われない
	assert.Equal(t, "RKT123", p.ProviderMetadata["receipt_number"])
	assert.Equal(t, "20250831143000", p.ProviderMetadata["transaction_date"])

	p.MergeProviderMetadata(nil)
	assert.Len(t, p.ProviderMetadata, 2)
}

func TestValidate(t *testing.T) {
	p := newTestPayment()
	assert.NoError(t, p.Validate())

	p2 := NewPayment("", MethodCard, decimal.NewFromInt(100), "KES")
	assert.ErrorIs(t, p2.Validate(), ErrTicketIDRequired)

	p3 := NewPayment("ticket-1", Method("bitcoin"), decimal.NewFromInt(100), "KES")
	assert.ErrorIs(t, p3.Validate(), ErrUnsupportedMethod)

	p4 := NewPayment("ticket-1", MethodCard, decimal.NewFromInt(-1), "KES")
	assert.ErrorIs(t, p4.Validate(), ErrInvalidAmount)
}
