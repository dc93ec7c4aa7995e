package payment

import "errors"

// Payment ドメインのエラー定義
var (
	ErrPaymentNotFound    = errors.New("決済が見つかりません")
	ErrAlreadyFinalized   = errors.New("決済は既に終端状態です")
	ErrNotRefundable      = errors.New("完了済みの決済のみ返金できます")
	ErrTicketIDRequired   = errors.New("チケットIDは必須です")
	ErrUnsupportedMethod  = errors.New("サポートされていない決済手段です")
	ErrInvalidAmount      = errors.New("金額は0以上である必要があります")
	ErrUnknownTransaction = errors.New("該当する取引が見つかりません")
	ErrStatusConflict     = errors.New("決済の状態が他の処理により変更されました")
)
