package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/provider"
)

// SignatureHeader はカード決済Webhookの署名ヘッダー
const SignatureHeader = "X-Signature"

type CallbackHandler struct {
	orchestrator CallbackOrchestratorInterface
}

func NewCallbackHandler(o CallbackOrchestratorInterface) *CallbackHandler {
	return &CallbackHandler{orchestrator: o}
}

// Card godoc
// @Summary カード決済のWebhookを受信
// @Description 署名を検証し、決済状態を更新します
// @Tags callbacks
// @Accept json
// @Produce json
// @Param X-Signature header string true "Webhook署名"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "形式不正または署名不一致"
// @Failure 404 {object} map[string]string "該当する取引なし"
// @Router /callbacks/card [post]
func (h *CallbackHandler) Card(c echo.Context) error {
	// 署名検証のため生のボディを読む
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストボディの読み取りに失敗")
	}
	signature := c.Request().Header.Get(SignatureHeader)

	if err := h.orchestrator.HandleCallback(c.Request().Context(), payment.MethodCard, body, signature); err != nil {
		return callbackError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}

// MobileMoneyAck はSTKコールバックへの応答フォーマット
type MobileMoneyAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// MobileMoney godoc
// @Summary モバイルマネーのSTKコールバックを受信
// @Description 決済結果を取り込み、プロバイダ形式の応答を返します
// @Tags callbacks
// @Accept json
// @Produce json
// @Success 200 {object} MobileMoneyAck
// @Failure 400 {object} map[string]string "形式不正"
// @Failure 404 {object} map[string]string "該当する取引なし"
// @Router /callbacks/mobile_money [post]
func (h *CallbackHandler) MobileMoney(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストボディの読み取りに失敗")
	}

	if err := h.orchestrator.HandleCallback(c.Request().Context(), payment.MethodMobileMoney, body, ""); err != nil {
		return callbackError(err)
	}
	return c.JSON(http.StatusOK, MobileMoneyAck{ResultCode: 0, ResultDesc: "Accepted"})
}

// callbackError はコールバック処理の失敗をHTTPステータスへ対応付ける
// 5xx を返すとプロバイダが再送するため、取引不明には 404 を返す
func callbackError(err error) error {
	switch {
	case errors.Is(err, provider.ErrMalformedCallback):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrUnknownTransaction):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
