package ticket

import "errors"

// Ticket ドメインのエラー定義
var (
	ErrTicketNotFound          = errors.New("チケットが見つかりません")
	ErrTicketAlreadyUsed       = errors.New("使用済みチケットは取り消せません")
	ErrCancelWindowClosed      = errors.New("開催日時を過ぎたチケットは取り消せません")
	ErrTicketNotConfirmed      = errors.New("チケットが確定されていません")
	ErrInvalidStatusTransition = errors.New("不正な状態遷移です")
	ErrSlotIDRequired          = errors.New("在庫枠IDは必須です")
	ErrCustomerNameRequired    = errors.New("購入者名は必須です")
	ErrInvalidQuantity         = errors.New("枚数は1以上である必要があります")
)
