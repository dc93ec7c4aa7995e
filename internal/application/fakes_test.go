package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
	"github.com/Coll76/nearbyhappenings/internal/provider"
)

// === テスト用のインメモリ実装 ===

type fakeTx struct{}

func (t *fakeTx) Commit() error   { return nil }
func (t *fakeTx) Rollback() error { return nil }

type fakeTxManager struct {
	beginErr error
}

func (m *fakeTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &fakeTx{}, nil
}

// fakeSlotRepo は予約・解放の原子性をミューテックスで再現する
type fakeSlotRepo struct {
	mu    sync.Mutex
	seq   int
	slots map[string]*slot.Slot
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{slots: make(map[string]*slot.Slot)}
}

func (r *fakeSlotRepo) Create(ctx context.Context, s *slot.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	s.ID = fmt.Sprintf("slot-%d", r.seq)
	clone := *s
	r.slots[s.ID] = &clone
	return nil
}

func (r *fakeSlotRepo) GetByID(ctx context.Context, id string) (*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeSlotRepo) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*slot.Slot, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeSlotRepo) ListUpcoming(ctx context.Context, after time.Time) ([]*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*slot.Slot
	for _, s := range r.slots {
		if s.StartsAt.After(after) {
			clone := *s
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *fakeSlotRepo) ListByEventID(ctx context.Context, eventID string) ([]*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*slot.Slot
	for _, s := range r.slots {
		if s.EventID == eventID {
			clone := *s
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *fakeSlotRepo) ReserveUnits(ctx context.Context, tx transaction.Tx, id string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return slot.ErrSlotNotFound
	}
	if s.UnitsSold+quantity > s.Capacity {
		if s.IsSoldOut() {
			return slot.ErrSoldOut
		}
		return &slot.InsufficientCapacityError{Requested: quantity, Remaining: s.Remaining()}
	}
	s.UnitsSold += quantity
	return nil
}

func (r *fakeSlotRepo) ReleaseUnits(ctx context.Context, tx transaction.Tx, id string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return slot.ErrSlotNotFound
	}
	if s.UnitsSold < quantity {
		return slot.ErrCapacityUnderflow
	}
	s.UnitsSold -= quantity
	return nil
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]*ticket.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*ticket.Ticket)}
}

func (r *fakeTicketRepo) Create(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.ID = fmt.Sprintf("ticket-%d", r.seq)
	clone := *t
	r.tickets[t.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*ticket.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, ticket.ErrTicketNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTicketRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*ticket.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.OrderNumber == orderNumber {
			clone := *t
			return &clone, nil
		}
	}
	return nil, ticket.ErrTicketNotFound
}

func (r *fakeTicketRepo) ListBySlotID(ctx context.Context, slotID string) ([]*ticket.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*ticket.Ticket
	for _, t := range r.tickets {
		if t.SlotID == slotID {
			clone := *t
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) UpdateStatus(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[t.ID]
	if !ok {
		return ticket.ErrTicketNotFound
	}
	stored.Status = t.Status
	stored.QRCode = t.QRCode
	stored.UpdatedAt = t.UpdatedAt
	return nil
}

func (r *fakeTicketRepo) CountBySlotID(ctx context.Context, slotID string) (map[ticket.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[ticket.Status]int)
	for _, t := range r.tickets {
		if t.SlotID == slotID {
			counts[t.Status]++
		}
	}
	return counts, nil
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	seq      int
	payments map[string]*payment.Payment
	// afterGetByTicketID は読み取り直後に割り込む処理（競合状況の再現用）
	afterGetByTicketID func(stored *payment.Payment)
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*payment.Payment)}
}

func (r *fakePaymentRepo) Create(ctx context.Context, tx transaction.Tx, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	p.ID = fmt.Sprintf("payment-%d", r.seq)
	clone := *p
	r.payments[p.ID] = &clone
	return nil
}

func (r *fakePaymentRepo) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakePaymentRepo) GetByTicketID(ctx context.Context, ticketID string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.TicketID == ticketID {
			clone := *p
			if r.afterGetByTicketID != nil {
				r.afterGetByTicketID(p)
			}
			return &clone, nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

func (r *fakePaymentRepo) GetByProviderTransactionID(ctx context.Context, providerTxID string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ProviderTransactionID != nil && *p.ProviderTransactionID == providerTxID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

func (r *fakePaymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return payment.ErrPaymentNotFound
	}
	clone := *p
	r.payments[p.ID] = &clone
	return nil
}

func (r *fakePaymentRepo) UpdateInTx(ctx context.Context, tx transaction.Tx, p *payment.Payment) error {
	return r.Update(ctx, p)
}

func (r *fakePaymentRepo) UpdateInTxFromStatus(ctx context.Context, tx transaction.Tx, p *payment.Payment, expected payment.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.payments[p.ID]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	if stored.Status != expected {
		return payment.ErrStatusConflict
	}
	clone := *p
	r.payments[p.ID] = &clone
	return nil
}

func (r *fakePaymentRepo) ListStale(ctx context.Context, updatedBefore time.Time) ([]*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*payment.Payment
	for _, p := range r.payments {
		if !p.IsFinal() && p.UpdatedAt.Before(updatedBefore) {
			clone := *p
			result = append(result, &clone)
		}
	}
	return result, nil
}

// fakeProvider は決済プロバイダのテストダブル
type fakeProvider struct {
	mu            sync.Mutex
	method        payment.Method
	initiateErr   error
	queryResult   *provider.StatusResult
	queryErr      error
	refundErr     error
	initiateCalls int
	refundCalls   int
	txSeq         int
}

func (p *fakeProvider) Method() payment.Method { return p.method }

func (p *fakeProvider) Initiate(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initiateCalls++
	if p.initiateErr != nil {
		return nil, p.initiateErr
	}
	p.txSeq++
	return &provider.InitiateResult{
		ProviderTransactionID: fmt.Sprintf("%s-tx-%d", p.method, p.txSeq),
		ClientSecret:          "secret",
		CustomerMessage:       "確認メッセージを送信しました",
	}, nil
}

func (p *fakeProvider) QueryStatus(ctx context.Context, providerTxID string) (*provider.StatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.queryResult != nil {
		return p.queryResult, nil
	}
	return &provider.StatusResult{Status: payment.StatusProcessing}, nil
}

func (p *fakeProvider) ParseCallback(body []byte, signature string) (*provider.CallbackEvent, error) {
	return nil, provider.ErrMalformedCallback
}

func (p *fakeProvider) Refund(ctx context.Context, providerTxID string, amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refundCalls++
	return p.refundErr
}

// === 共通セットアップ ===

type testEnv struct {
	slotRepo    *fakeSlotRepo
	ticketRepo  *fakeTicketRepo
	paymentRepo *fakePaymentRepo
	cardProv    *fakeProvider
	mmProv      *fakeProvider
	registry    *provider.Registry
	ledger      *CapacityLedger
	purchase    *PurchaseService
	tickets     *TicketService
	orchestra   *PaymentOrchestrator
}

func newTestEnv() *testEnv {
	env := &testEnv{
		slotRepo:    newFakeSlotRepo(),
		ticketRepo:  newFakeTicketRepo(),
		paymentRepo: newFakePaymentRepo(),
		cardProv:    &fakeProvider{method: payment.MethodCard},
		mmProv:      &fakeProvider{method: payment.MethodMobileMoney},
	}
	env.registry = provider.NewRegistry(env.cardProv, env.mmProv)
	txm := &fakeTxManager{}
	env.ledger = NewCapacityLedger(env.slotRepo, nil, nil)
	env.purchase = NewPurchaseService(txm, env.ledger, env.slotRepo, env.ticketRepo, env.paymentRepo, env.registry, nil)
	env.tickets = NewTicketService(txm, env.ledger, env.slotRepo, env.ticketRepo, env.paymentRepo, env.registry, nil)
	env.orchestra = NewPaymentOrchestrator(txm, env.paymentRepo, env.registry, env.tickets, nil, nil)
	env.orchestra.lookupWindow = 200 * time.Millisecond
	env.orchestra.lookupInterval = 20 * time.Millisecond
	return env
}

func (env *testEnv) createSlot(capacity, sold int) *slot.Slot {
	s := slot.NewSlot("event-1", "夏祭りライブ", time.Now().Add(24*time.Hour), capacity,
		decimal.NewFromInt(100), decimal.NewFromInt(15))
	s.UnitsSold = sold
	_ = env.slotRepo.Create(context.Background(), s)
	return s
}
