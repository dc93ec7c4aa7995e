package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Pricing ドメインのエラー定義
var (
	ErrInvalidQuantity    = errors.New("枚数は1以上である必要があります")
	ErrNegativeUnitPrice  = errors.New("単価は0以上である必要があります")
	ErrNegativeServiceFee = errors.New("手数料率は0以上である必要があります")
)

var hundred = decimal.NewFromInt(100)

// Quote は購入時点の金額内訳を表す
// チケットに凍結して保存され、以後の料金変更の影響を受けない
type Quote struct {
	UnitPrice     decimal.Decimal
	Quantity      int
	ServiceFeePct decimal.Decimal
	Subtotal      decimal.Decimal
	ServiceFee    decimal.Decimal
	Total         decimal.Decimal
}

// Compute は単価・枚数・手数料率から金額内訳を算出する
// 手数料は小計全体に対して一度だけ適用し、端数は銀行丸め（偶数丸め）で
// 小数第2位に丸める
func Compute(unitPrice decimal.Decimal, quantity int, serviceFeePct decimal.Decimal) (*Quote, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return nil, ErrNegativeUnitPrice
	}
	if serviceFeePct.IsNegative() {
		return nil, ErrNegativeServiceFee
	}

	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	fee := subtotal.Mul(serviceFeePct).Div(hundred).RoundBank(2)

	return &Quote{
		UnitPrice:     unitPrice,
		Quantity:      quantity,
		ServiceFeePct: serviceFeePct,
		Subtotal:      subtotal,
		ServiceFee:    fee,
		Total:         subtotal.Add(fee),
	}, nil
}
