package provider

import (
	"errors"
	"fmt"
)

// Provider 共通のエラー定義
var (
	// ErrProviderUnreachable はプロバイダに到達できなかったことを表す
	// 取引IDを受け取る前の失敗であり、リトライ可能
	ErrProviderUnreachable = errors.New("決済プロバイダに接続できません")

	// ErrInvalidCredentials は認証情報の不備を表す。リトライ不可
	ErrInvalidCredentials = errors.New("決済プロバイダの認証に失敗しました")

	// ErrMalformedCallback はコールバックの解析・検証失敗を表す
	ErrMalformedCallback = errors.New("コールバックの形式が不正です")

	// ErrUnsupportedMethod は未対応の決済手段を表す
	ErrUnsupportedMethod = errors.New("サポートされていない決済手段です")
)

// RequestRejectedError はプロバイダが要求を明示的に拒否したことを表す
// 取引IDが発行済みの場合は ProviderTransactionID に保持する
type RequestRejectedError struct {
	Reason                string
	ProviderTransactionID string
}

func (e *RequestRejectedError) Error() string {
	return fmt.Sprintf("決済要求が拒否されました: %s", e.Reason)
}
