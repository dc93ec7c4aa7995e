package mobilemoney

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Coll76/nearbyhappenings/internal/config"
	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/pkg/logger"
	"github.com/Coll76/nearbyhappenings/internal/provider"
	"go.uber.org/zap"
)

// MobileMoney はモバイルマネー決済プロバイダの実装
// 利用者の端末にSTKプッシュを送信し、結果はコールバックで受け取る
type MobileMoney struct {
	client *Client
	cfg    config.MobileMoneyProviderConfig
}

// New は新しいモバイルマネー決済プロバイダを作成する
func New(cfg config.MobileMoneyProviderConfig) *MobileMoney {
	return &MobileMoney{
		client: NewClient(cfg),
		cfg:    cfg,
	}
}

// Method は決済手段を返す
func (m *MobileMoney) Method() payment.Method {
	return payment.MethodMobileMoney
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Initiate はSTKプッシュを送信する
func (m *MobileMoney) Initiate(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResult, error) {
	phone := normalizePhone(req.CustomerPhone)
	timestamp := time.Now().Format("20060102150405")

	// 金額は整数単位に丸めて送信する
	payload := &stkPushRequest{
		BusinessShortCode: m.cfg.ShortCode,
		Password:          m.client.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.Round(0).String(),
		PartyA:            phone,
		PartyB:            m.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       m.cfg.CallbackURL,
		AccountReference:  req.OrderNumber,
		TransactionDesc:   req.Description,
	}

	var resp stkPushResponse
	if err := m.client.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", payload, &resp); err != nil {
		return nil, err
	}

	if resp.ResponseCode != "0" {
		return nil, &provider.RequestRejectedError{
			Reason:                resp.ResponseDescription,
			ProviderTransactionID: resp.CheckoutRequestID,
		}
	}

	return &provider.InitiateResult{
		ProviderTransactionID: resp.CheckoutRequestID,
		CustomerMessage:       resp.CustomerMessage,
	}, nil
}

type stkQueryResponse struct {
	ResponseCode      string `json:"ResponseCode"`
	ResultCode        string `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// QueryStatus はSTKプッシュの結果を照会する
func (m *MobileMoney) QueryStatus(ctx context.Context, providerTxID string) (*provider.StatusResult, error) {
	timestamp := time.Now().Format("20060102150405")
	payload := map[string]string{
		"BusinessShortCode": m.cfg.ShortCode,
		"Password":          m.client.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": providerTxID,
	}

	var resp stkQueryResponse
	if err := m.client.postJSON(ctx, "/mpesa/stkpushquery/v1/query", payload, &resp); err != nil {
		return nil, err
	}

	return mapResultCode(resp.ResultCode, resp.ResultDesc), nil
}

// stkCallback はコールバックのペイロードを表す
type stkCallback struct {
	Body struct {
		StkCallback struct {
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback はコールバックの生ペイロードを解析する
// モバイルマネーのコールバックに署名はなく、形式検証のみを行う
func (m *MobileMoney) ParseCallback(body []byte, _ string) (*provider.CallbackEvent, error) {
	var cb stkCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedCallback, err)
	}

	sc := cb.Body.StkCallback
	if sc.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: 取引IDがありません", provider.ErrMalformedCallback)
	}

	ev := &provider.CallbackEvent{ProviderTransactionID: sc.CheckoutRequestID}
	if sc.ResultCode == 0 {
		ev.Status = payment.StatusCompleted
		md := make(map[string]string)
		for _, item := range sc.CallbackMetadata.Item {
			switch item.Name {
			case "MpesaReceiptNumber":
				md["receipt_number"] = itemString(item.Value)
			case "TransactionDate":
				md["transaction_date"] = itemString(item.Value)
			case "PhoneNumber":
				md["phone_number"] = itemString(item.Value)
			case "Amount":
				md["amount"] = itemString(item.Value)
			}
		}
		if len(md) > 0 {
			ev.Metadata = md
		}
	} else {
		ev.Status = payment.StatusFailed
		ev.FailureReason = sc.ResultDesc
	}

	return ev, nil
}

// itemString はコールバック項目の値を文字列化する
// 電話番号・取引日時は数値として届くため、指数表記を避けて整形する
func itemString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Refund は返金を開始する
// モバイルマネーAPIの自動返金には組織側の認証情報が必要なため、
// ここでは返金依頼を記録し、運用側の手動送金で処理する
func (m *MobileMoney) Refund(ctx context.Context, providerTxID string, amount decimal.Decimal) error {
	logger.Info("モバイルマネーの返金依頼を受け付けました",
		zap.String("provider_tx_id", providerTxID),
		zap.String("amount", amount.String()))
	return nil
}

// mapResultCode は照会結果コードを内部の決済状態に対応付ける
func mapResultCode(code, desc string) *provider.StatusResult {
	switch code {
	case "0":
		return &provider.StatusResult{Status: payment.StatusCompleted}
	case "1032":
		// 利用者によるキャンセル
		return &provider.StatusResult{Status: payment.StatusFailed, FailureReason: desc}
	case "1037":
		// タイムアウト: 失敗とは限らないため処理中のままとする
		return &provider.StatusResult{Status: payment.StatusProcessing}
	case "":
		return &provider.StatusResult{Status: payment.StatusProcessing}
	}
	return &provider.StatusResult{Status: payment.StatusFailed, FailureReason: desc}
}
