package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Coll76/nearbyhappenings/internal/application"
	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
	"github.com/Coll76/nearbyhappenings/internal/provider"
)

// MockPurchaseService はPurchaseServiceInterfaceのモック
type MockPurchaseService struct {
	mock.Mock
}

func (m *MockPurchaseService) Purchase(ctx context.Context, input application.PurchaseInput) (*application.PurchaseResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.PurchaseResult), args.Error(1)
}

func purchaseResult() *application.PurchaseResult {
	now := time.Now()
	txID := "ws_CO_123"
	return &application.PurchaseResult{
		Ticket: &ticket.Ticket{
			ID:          "ticket-123",
			SlotID:      "slot-123",
			OrderNumber: "ORD-A1B2C3",
			Quantity:    2,
			UnitPrice:   decimal.NewFromInt(1500),
			Subtotal:    decimal.NewFromInt(3000),
			ServiceFee:  decimal.NewFromInt(450),
			TotalPrice:  decimal.NewFromInt(3450),
			Currency:    "KES",
			Status:      ticket.StatusPending,
			CreatedAt:   now,
		},
		Payment: &payment.Payment{
			ID:                    "payment-123",
			TicketID:              "ticket-123",
			Method:                payment.MethodMobileMoney,
			Amount:                decimal.NewFromInt(3450),
			Currency:              "KES",
			Status:                payment.StatusProcessing,
			ProviderTransactionID: &txID,
			CreatedAt:             now,
		},
		CustomerMessage: "携帯電話で決済を承認してください",
	}
}

const validPurchaseBody = `{
	"slot_id": "slot-123",
	"customer_name": "山田太郎",
	"customer_phone": "0712345678",
	"quantity": 2,
	"payment_method": "mobile_money"
}`

func doPurchase(t *testing.T, svc PurchaseServiceInterface, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := NewTestEcho()
	req := httptest.NewRequest(http.MethodPost, "/purchases", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := NewPurchaseHandler(svc).Create(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestPurchaseHandler_Create(t *testing.T) {
	t.Run("正常に購入できる", func(t *testing.T) {
		mockService := new(MockPurchaseService)
		mockService.On("Purchase", mock.Anything, mock.AnythingOfType("application.PurchaseInput")).
			Return(purchaseResult(), nil)

		rec := doPurchase(t, mockService, validPurchaseBody)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp PurchaseResponse
		err := json.Unmarshal(rec.Body.Bytes(), &resp)
		require.NoError(t, err)
		assert.Equal(t, "ticket-123", resp.Ticket.ID)
		assert.Equal(t, "3450", resp.Ticket.TotalPrice)
		assert.Equal(t, "processing", resp.Payment.Status)
		assert.NotEmpty(t, resp.CustomerMessage)

		mockService.AssertExpectations(t)
	})

	t.Run("必須項目がないと400", func(t *testing.T) {
		mockService := new(MockPurchaseService)

		rec := doPurchase(t, mockService, `{"slot_id": "slot-123"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	})

	t.Run("不正な決済手段は400", func(t *testing.T) {
		mockService := new(MockPurchaseService)

		body := strings.Replace(validPurchaseBody, "mobile_money", "bitcoin", 1)
		rec := doPurchase(t, mockService, body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("完売は409", func(t *testing.T) {
		mockService := new(MockPurchaseService)
		mockService.On("Purchase", mock.Anything, mock.Anything).Return(nil, slot.ErrSoldOut)

		rec := doPurchase(t, mockService, validPurchaseBody)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("残数不足は409", func(t *testing.T) {
		mockService := new(MockPurchaseService)
		mockService.On("Purchase", mock.Anything, mock.Anything).
			Return(nil, &slot.InsufficientCapacityError{Requested: 3, Remaining: 1})

		rec := doPurchase(t, mockService, validPurchaseBody)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("在庫枠がないと404", func(t *testing.T) {
		mockService := new(MockPurchaseService)
		mockService.On("Purchase", mock.Anything, mock.Anything).Return(nil, slot.ErrSlotNotFound)

		rec := doPurchase(t, mockService, validPurchaseBody)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("プロバイダの拒否は402", func(t *testing.T) {
		mockService := new(MockPurchaseService)
		mockService.On("Purchase", mock.Anything, mock.Anything).
			Return(nil, &provider.RequestRejectedError{Reason: "カードが拒否されました"})

		rec := doPurchase(t, mockService, validPurchaseBody)

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("プロバイダに接続できないと502", func(t *testing.T) {
		mockService := new(MockPurchaseService)
		mockService.On("Purchase", mock.Anything, mock.Anything).
			Return(nil, provider.ErrProviderUnreachable)

		rec := doPurchase(t, mockService, validPurchaseBody)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
