package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Coll76/nearbyhappenings/internal/application"
	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
)

type SlotHandler struct {
	service SlotServiceInterface
}

func NewSlotHandler(s SlotServiceInterface) *SlotHandler {
	return &SlotHandler{service: s}
}

type CreateSlotRequest struct {
	EventID       string    `json:"event_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventName     string    `json:"event_name" validate:"required" example:"夏祭りライブ"`
	StartsAt      time.Time `json:"starts_at" validate:"required"`
	Venue         string    `json:"venue" example:"市民ホール"`
	Capacity      int       `json:"capacity" validate:"required,min=1" example:"200"`
	PricePerUnit  string    `json:"price_per_unit" validate:"required" example:"1500.00"`
	ServiceFeePct string    `json:"service_fee_pct" validate:"required" example:"15"`
}

type SlotResponse struct {
	ID            string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventID       string    `json:"event_id"`
	EventName     string    `json:"event_name" example:"夏祭りライブ"`
	StartsAt      time.Time `json:"starts_at"`
	Venue         string    `json:"venue" example:"市民ホール"`
	Capacity      int       `json:"capacity" example:"200"`
	UnitsSold     int       `json:"units_sold" example:"120"`
	Remaining     int       `json:"remaining" example:"80"`
	Availability  string    `json:"availability" example:"available"`
	PricePerUnit  string    `json:"price_per_unit" example:"1500.00"`
	ServiceFeePct string    `json:"service_fee_pct" example:"15"`
	CreatedAt     time.Time `json:"created_at"`
}

func toSlotResponse(s *slot.Slot) SlotResponse {
	return SlotResponse{
		ID: s.ID, EventID: s.EventID, EventName: s.EventName,
		StartsAt: s.StartsAt, Venue: s.Venue,
		Capacity: s.Capacity, UnitsSold: s.UnitsSold,
		Remaining: s.Remaining(), Availability: string(s.Availability()),
		PricePerUnit:  s.PricePerUnit.String(),
		ServiceFeePct: s.ServiceFeePct.String(),
		CreatedAt:     s.CreatedAt,
	}
}

// Create godoc
// @Summary 在庫枠を作成
// @Description 販売可能な在庫枠を登録します
// @Tags slots
// @Accept json
// @Produce json
// @Param request body CreateSlotRequest true "在庫枠情報"
// @Success 201 {object} SlotResponse
// @Failure 400 {object} map[string]string
// @Router /slots [post]
func (h *SlotHandler) Create(c echo.Context) error {
	var req CreateSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	s, err := h.service.CreateSlot(c.Request().Context(), application.CreateSlotInput{
		EventID: req.EventID, EventName: req.EventName, StartsAt: req.StartsAt,
		Venue: req.Venue, Capacity: req.Capacity,
		PricePerUnit: req.PricePerUnit, ServiceFeePct: req.ServiceFeePct,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, toSlotResponse(s))
}

// List godoc
// @Summary 在庫枠一覧を取得
// @Description 今後開催される在庫枠の一覧を取得します
// @Tags slots
// @Produce json
// @Success 200 {array} SlotResponse
// @Router /slots [get]
func (h *SlotHandler) List(c echo.Context) error {
	slots, err := h.service.ListUpcomingSlots(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]SlotResponse, len(slots))
	for i, s := range slots {
		resp[i] = toSlotResponse(s)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetByID godoc
// @Summary 在庫枠を取得
// @Description 指定IDの在庫枠を取得します
// @Tags slots
// @Produce json
// @Param id path string true "在庫枠ID"
// @Success 200 {object} SlotResponse
// @Failure 404 {object} map[string]string
// @Router /slots/{id} [get]
func (h *SlotHandler) GetByID(c echo.Context) error {
	id := c.Param("id")
	s, err := h.service.GetSlot(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, slot.ErrSlotNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toSlotResponse(s))
}

type AvailabilityResponse struct {
	SlotID    string `json:"slot_id"`
	Remaining int    `json:"remaining" example:"80"`
}

// GetAvailability godoc
// @Summary 在庫枠の残数を取得
// @Description キャッシュを利用して残数を取得します（最大30秒の遅延あり）
// @Tags slots
// @Produce json
// @Param id path string true "在庫枠ID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} map[string]string
// @Router /slots/{id}/availability [get]
func (h *SlotHandler) GetAvailability(c echo.Context) error {
	id := c.Param("id")
	remaining, err := h.service.GetRemaining(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, slot.ErrSlotNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{SlotID: id, Remaining: remaining})
}
