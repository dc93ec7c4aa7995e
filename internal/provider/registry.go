package provider

import (
	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
)

// Registry は決済手段からプロバイダ実装への対応表を管理する
type Registry struct {
	providers map[payment.Method]Provider
}

// NewRegistry は新しいレジストリを作成する
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[payment.Method]Provider)}
	for _, p := range providers {
		r.providers[p.Method()] = p
	}
	return r
}

// Register はプロバイダを登録する。同一手段は後勝ちで上書きされる
func (r *Registry) Register(p Provider) {
	r.providers[p.Method()] = p
}

// ForMethod は決済手段に対応するプロバイダを返す
func (r *Registry) ForMethod(method payment.Method) (Provider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, ErrUnsupportedMethod
	}
	return p, nil
}

// Methods は登録済みの決済手段一覧を返す
func (r *Registry) Methods() []payment.Method {
	methods := make([]payment.Method, 0, len(r.providers))
	for m := range r.providers {
		methods = append(methods, m)
	}
	return methods
}
