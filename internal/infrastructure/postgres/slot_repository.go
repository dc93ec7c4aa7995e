package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Coll76/nearbyhappenings/internal/domain/slot"
	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
)

type slotRow struct {
	ID            string          `db:"id"`
	EventID       string          `db:"event_id"`
	EventName     string          `db:"event_name"`
	StartsAt      time.Time       `db:"starts_at"`
	Venue         string          `db:"venue"`
	Capacity      int             `db:"capacity"`
	UnitsSold     int             `db:"units_sold"`
	PricePerUnit  decimal.Decimal `db:"price_per_unit"`
	ServiceFeePct decimal.Decimal `db:"service_fee_pct"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r *slotRow) toEntity() *slot.Slot {
	return &slot.Slot{
		ID: r.ID, EventID: r.EventID, EventName: r.EventName,
		StartsAt: r.StartsAt, Venue: r.Venue,
		Capacity: r.Capacity, UnitsSold: r.UnitsSold,
		PricePerUnit: r.PricePerUnit, ServiceFeePct: r.ServiceFeePct,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const slotColumns = `id, event_id, event_name, starts_at, venue, capacity, units_sold, price_per_unit, service_fee_pct, created_at, updated_at`

type SlotRepository struct{ db *sqlx.DB }

func NewSlotRepository(db *sqlx.DB) *SlotRepository { return &SlotRepository{db: db} }

func (r *SlotRepository) Create(ctx context.Context, s *slot.Slot) error {
	query := `INSERT INTO slots (event_id, event_name, starts_at, venue, capacity, units_sold, price_per_unit, service_fee_pct, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		s.EventID, s.EventName, s.StartsAt, s.Venue, s.Capacity, s.UnitsSold,
		s.PricePerUnit, s.ServiceFeePct, s.CreatedAt, s.UpdatedAt).Scan(&s.ID)
}

func (r *SlotRepository) GetByID(ctx context.Context, id string) (*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`
	var row slotRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, slot.ErrSlotNotFound
		}
		return nil, fmt.Errorf("在庫枠取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *SlotRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*slot.Slot, error) {
	sqlxTx := UnwrapTx(tx)
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1 FOR UPDATE`
	var row slotRow
	if err := sqlxTx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, slot.ErrSlotNotFound
		}
		return nil, fmt.Errorf("在庫枠取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *SlotRepository) ListUpcoming(ctx context.Context, after time.Time) ([]*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE starts_at > $1 ORDER BY starts_at`
	var rows []slotRow
	if err := r.db.SelectContext(ctx, &rows, query, after); err != nil {
		return nil, fmt.Errorf("在庫枠一覧取得に失敗: %w", err)
	}
	slots := make([]*slot.Slot, len(rows))
	for i, row := range rows {
		slots[i] = row.toEntity()
	}
	return slots, nil
}

func (r *SlotRepository) ListByEventID(ctx context.Context, eventID string) ([]*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE event_id = $1 ORDER BY starts_at`
	var rows []slotRow
	if err := r.db.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("在庫枠一覧取得に失敗: %w", err)
	}
	slots := make([]*slot.Slot, len(rows))
	for i, row := range rows {
		slots[i] = row.toEntity()
	}
	return slots, nil
}

// ReserveUnits は残数を検査しつつ販売数を加算する
// 検査と加算は単一のUPDATE文で行い、同時実行下でも定員超過が起きないようにする
func (r *SlotRepository) ReserveUnits(ctx context.Context, tx transaction.Tx, id string, quantity int) error {
	sqlxTx := UnwrapTx(tx)
	query := `UPDATE slots SET units_sold = units_sold + $1, updated_at = NOW() WHERE id = $2 AND units_sold + $1 <= capacity`
	result, err := sqlxTx.ExecContext(ctx, query, quantity, id)
	if err != nil {
		return fmt.Errorf("在庫枠の予約に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("在庫枠の予約に失敗: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// 更新できなかった場合は行ロック付きで再取得し、原因を区別する
	s, err := r.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if s.IsSoldOut() {
		return slot.ErrSoldOut
	}
	return &slot.InsufficientCapacityError{Requested: quantity, Remaining: s.Remaining()}
}

// ReleaseUnits は販売数を減算する
// 販売数が負になる更新は行わず、不変条件違反として検出する
func (r *SlotRepository) ReleaseUnits(ctx context.Context, tx transaction.Tx, id string, quantity int) error {
	sqlxTx := UnwrapTx(tx)
	query := `UPDATE slots SET units_sold = units_sold - $1, updated_at = NOW() WHERE id = $2 AND units_sold >= $1`
	result, err := sqlxTx.ExecContext(ctx, query, quantity, id)
	if err != nil {
		return fmt.Errorf("在庫枠の解放に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("在庫枠の解放に失敗: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetByIDForUpdate(ctx, tx, id); err != nil {
			return err
		}
		return slot.ErrCapacityUnderflow
	}
	return nil
}

var _ slot.Repository = (*SlotRepository)(nil)
