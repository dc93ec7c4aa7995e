package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Coll76/nearbyhappenings/internal/application"
	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
	"github.com/Coll76/nearbyhappenings/internal/provider"
)

type PurchaseHandler struct {
	service PurchaseServiceInterface
}

func NewPurchaseHandler(s PurchaseServiceInterface) *PurchaseHandler {
	return &PurchaseHandler{service: s}
}

type CreatePurchaseRequest struct {
	SlotID        string `json:"slot_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	CustomerName  string `json:"customer_name" validate:"required" example:"山田太郎"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email" example:"taro@example.com"`
	CustomerPhone string `json:"customer_phone" example:"0712345678"`
	Quantity      int    `json:"quantity" validate:"required,min=1" example:"2"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card mobile_money" example:"mobile_money"`
}

type TicketResponse struct {
	ID            string     `json:"id"`
	SlotID        string     `json:"slot_id"`
	OrderNumber   string     `json:"order_number" example:"ORD-A1B2C3"`
	CustomerName  string     `json:"customer_name" example:"山田太郎"`
	Quantity      int        `json:"quantity" example:"2"`
	UnitPrice     string     `json:"unit_price" example:"1500.00"`
	Subtotal      string     `json:"subtotal" example:"3000.00"`
	ServiceFee    string     `json:"service_fee" example:"450.00"`
	TotalPrice    string     `json:"total_price" example:"3450.00"`
	Currency      string     `json:"currency" example:"KES"`
	Status        string     `json:"status" example:"pending"`
	QRCode        string     `json:"qr_code,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTicketResponse(t *ticket.Ticket) TicketResponse {
	return TicketResponse{
		ID: t.ID, SlotID: t.SlotID, OrderNumber: t.OrderNumber,
		CustomerName: t.CustomerName, Quantity: t.Quantity,
		UnitPrice: t.UnitPrice.String(), Subtotal: t.Subtotal.String(),
		ServiceFee: t.ServiceFee.String(), TotalPrice: t.TotalPrice.String(),
		Currency: t.Currency, Status: string(t.Status),
		QRCode: t.QRCode, CreatedAt: t.CreatedAt,
	}
}

type PurchaseResponse struct {
	Ticket          TicketResponse  `json:"ticket"`
	Payment         PaymentResponse `json:"payment"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	CustomerMessage string          `json:"customer_message,omitempty"`
}

// Create godoc
// @Summary チケットを購入
// @Description 在庫を確保し、指定の決済手段で決済を開始します
// @Tags purchases
// @Accept json
// @Produce json
// @Param request body CreatePurchaseRequest true "購入情報"
// @Success 201 {object} PurchaseResponse
// @Failure 400 {object} map[string]string
// @Failure 402 {object} map[string]string "決済プロバイダが要求を拒否"
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "完売または残数不足"
// @Failure 502 {object} map[string]string "決済プロバイダに接続できない"
// @Router /purchases [post]
func (h *PurchaseHandler) Create(c echo.Context) error {
	var req CreatePurchaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := h.service.Purchase(c.Request().Context(), application.PurchaseInput{
		SlotID:        req.SlotID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Quantity:      req.Quantity,
		Method:        payment.Method(req.PaymentMethod),
	})
	if err != nil {
		return purchaseError(err)
	}

	return c.JSON(http.StatusCreated, PurchaseResponse{
		Ticket:          toTicketResponse(result.Ticket),
		Payment:         toPaymentResponse(result.Payment),
		ClientSecret:    result.ClientSecret,
		CustomerMessage: result.CustomerMessage,
	})
}

// purchaseError は購入の失敗をHTTPステータスへ対応付ける
func purchaseError(err error) error {
	var insufficient *slot.InsufficientCapacityError
	var rejected *provider.RequestRejectedError

	switch {
	case errors.Is(err, slot.ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, slot.ErrSoldOut):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &insufficient):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrUnsupportedMethod):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &rejected):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, provider.ErrProviderUnreachable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ticket.ErrInvalidQuantity),
		errors.Is(err, ticket.ErrCustomerNameRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
