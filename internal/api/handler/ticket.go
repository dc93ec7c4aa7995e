package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
)

type TicketHandler struct {
	service TicketServiceInterface
}

func NewTicketHandler(s TicketServiceInterface) *TicketHandler {
	return &TicketHandler{service: s}
}

type PaymentResponse struct {
	ID                    string            `json:"id"`
	TicketID              string            `json:"ticket_id"`
	Method                string            `json:"method" example:"mobile_money"`
	Amount                string            `json:"amount" example:"3450.00"`
	Currency              string            `json:"currency" example:"KES"`
	Status                string            `json:"status" example:"processing"`
	ProviderTransactionID *string           `json:"provider_transaction_id,omitempty"`
	FailureReason         *string           `json:"failure_reason,omitempty"`
	ProviderMetadata      map[string]string `json:"provider_metadata,omitempty"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
}

func toPaymentResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID: p.ID, TicketID: p.TicketID,
		Method: string(p.Method), Amount: p.Amount.String(),
		Currency: p.Currency, Status: string(p.Status),
		ProviderTransactionID: p.ProviderTransactionID,
		FailureReason:         p.FailureReason,
		ProviderMetadata:      p.ProviderMetadata,
		CompletedAt:           p.CompletedAt,
		CreatedAt:             p.CreatedAt,
	}
}

// GetByID godoc
// @Summary チケットを取得
// @Description 指定IDのチケットを取得します
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 404 {object} map[string]string
// @Router /tickets/{id} [get]
func (h *TicketHandler) GetByID(c echo.Context) error {
	id := c.Param("id")
	t, err := h.service.GetTicket(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ticket.ErrTicketNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// GetByOrderNumber godoc
// @Summary 注文番号からチケットを取得
// @Description 注文番号でチケットを検索します
// @Tags tickets
// @Produce json
// @Param order_number path string true "注文番号"
// @Success 200 {object} TicketResponse
// @Failure 404 {object} map[string]string
// @Router /tickets/order/{order_number} [get]
func (h *TicketHandler) GetByOrderNumber(c echo.Context) error {
	orderNumber := c.Param("order_number")
	t, err := h.service.GetTicketByOrderNumber(c.Request().Context(), orderNumber)
	if err != nil {
		if errors.Is(err, ticket.ErrTicketNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// GetPayment godoc
// @Summary チケットの決済状況を取得
// @Description チケットに紐づく決済の状態を取得します
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} PaymentResponse
// @Failure 404 {object} map[string]string
// @Router /tickets/{id}/payment [get]
func (h *TicketHandler) GetPayment(c echo.Context) error {
	id := c.Param("id")
	p, err := h.service.GetPayment(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toPaymentResponse(p))
}

// Cancel godoc
// @Summary チケットを取消
// @Description チケットを取り消し、在庫を解放します。決済完了済みの場合は返金します
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 400 {object} map[string]string "使用済みまたは開催日経過"
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "決済の状態が処理中に変化"
// @Failure 502 {object} map[string]string "返金の失敗"
// @Router /tickets/{id}/cancel [post]
func (h *TicketHandler) Cancel(c echo.Context) error {
	id := c.Param("id")
	if err := h.service.CancelTicket(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, ticket.ErrTicketNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ticket.ErrTicketAlreadyUsed),
			errors.Is(err, ticket.ErrCancelWindowClosed):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, payment.ErrStatusConflict):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
	}
	t, err := h.service.GetTicket(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

type CheckInRequest struct {
	QRCode string `json:"qr_code" validate:"required" example:"ORD-A1B2C3-D4E5F6A7B8"`
}

// CheckIn godoc
// @Summary チケットで入場
// @Description QRコードを検証し、チケットを使用済みにします
// @Tags tickets
// @Accept json
// @Produce json
// @Param request body CheckInRequest true "QRコード"
// @Success 200 {object} TicketResponse
// @Failure 400 {object} map[string]string "未確定または使用済み"
// @Failure 404 {object} map[string]string
// @Router /tickets/check-in [post]
func (h *TicketHandler) CheckIn(c echo.Context) error {
	var req CheckInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	t, err := h.service.CheckInTicket(c.Request().Context(), req.QRCode)
	if err != nil {
		if errors.Is(err, ticket.ErrTicketNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// ListBySlot godoc
// @Summary 在庫枠のチケット一覧を取得
// @Description 指定在庫枠のチケット一覧を取得します
// @Tags tickets
// @Produce json
// @Param id path string true "在庫枠ID"
// @Success 200 {array} TicketResponse
// @Router /slots/{id}/tickets [get]
func (h *TicketHandler) ListBySlot(c echo.Context) error {
	slotID := c.Param("id")
	tickets, err := h.service.ListSlotTickets(c.Request().Context(), slotID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]TicketResponse, len(tickets))
	for i, t := range tickets {
		resp[i] = toTicketResponse(t)
	}
	return c.JSON(http.StatusOK, resp)
}

type SlotStatsResponse struct {
	SlotID string         `json:"slot_id"`
	Counts map[string]int `json:"counts"`
}

// GetSlotStats godoc
// @Summary 在庫枠のチケット集計を取得
// @Description 状態別のチケット数を取得します
// @Tags tickets
// @Produce json
// @Param id path string true "在庫枠ID"
// @Success 200 {object} SlotStatsResponse
// @Router /slots/{id}/stats [get]
func (h *TicketHandler) GetSlotStats(c echo.Context) error {
	slotID := c.Param("id")
	stats, err := h.service.GetSlotStats(c.Request().Context(), slotID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	counts := make(map[string]int, len(stats.Counts))
	for status, n := range stats.Counts {
		counts[string(status)] = n
	}
	return c.JSON(http.StatusOK, SlotStatsResponse{SlotID: slotID, Counts: counts})
}
