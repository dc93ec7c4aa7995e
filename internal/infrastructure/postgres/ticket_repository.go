package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Coll76/nearbyhappenings/internal/domain/ticket"
	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
)

type ticketRow struct {
	ID            string          `db:"id"`
	SlotID        string          `db:"slot_id"`
	CustomerName  string          `db:"customer_name"`
	CustomerEmail string          `db:"customer_email"`
	CustomerPhone string          `db:"customer_phone"`
	Quantity      int             `db:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	ServiceFeePct decimal.Decimal `db:"service_fee_pct"`
	Subtotal      decimal.Decimal `db:"subtotal"`
	ServiceFee    decimal.Decimal `db:"service_fee"`
	TotalPrice    decimal.Decimal `db:"total_price"`
	Currency      string          `db:"currency"`
	Status        string          `db:"status"`
	OrderNumber   string          `db:"order_number"`
	QRCode        string          `db:"qr_code"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r *ticketRow) toEntity() *ticket.Ticket {
	return &ticket.Ticket{
		ID: r.ID, SlotID: r.SlotID,
		CustomerName: r.CustomerName, CustomerEmail: r.CustomerEmail, CustomerPhone: r.CustomerPhone,
		Quantity: r.Quantity, UnitPrice: r.UnitPrice, ServiceFeePct: r.ServiceFeePct,
		Subtotal: r.Subtotal, ServiceFee: r.ServiceFee, TotalPrice: r.TotalPrice,
		Currency: r.Currency, Status: ticket.Status(r.Status),
		OrderNumber: r.OrderNumber, QRCode: r.QRCode,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const ticketColumns = `id, slot_id, customer_name, customer_email, customer_phone, quantity, unit_price, service_fee_pct, subtotal, service_fee, total_price, currency, status, order_number, qr_code, created_at, updated_at`

type TicketRepository struct{ db *sqlx.DB }

func NewTicketRepository(db *sqlx.DB) *TicketRepository { return &TicketRepository{db: db} }

func (r *TicketRepository) Create(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	sqlxTx := UnwrapTx(tx)
	query := `INSERT INTO tickets (slot_id, customer_name, customer_email, customer_phone, quantity, unit_price, service_fee_pct, subtotal, service_fee, total_price, currency, status, order_number, qr_code, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING id`
	err := sqlxTx.QueryRowContext(ctx, query,
		t.SlotID, t.CustomerName, t.CustomerEmail, t.CustomerPhone, t.Quantity,
		t.UnitPrice, t.ServiceFeePct, t.Subtotal, t.ServiceFee, t.TotalPrice,
		t.Currency, string(t.Status), t.OrderNumber, t.QRCode, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("チケット作成に失敗: %w", err)
	}
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*ticket.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	var row ticketRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, fmt.Errorf("チケット取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *TicketRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*ticket.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE order_number = $1`
	var row ticketRow
	if err := r.db.GetContext(ctx, &row, query, orderNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, fmt.Errorf("チケット取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *TicketRepository) ListBySlotID(ctx context.Context, slotID string) ([]*ticket.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE slot_id = $1 ORDER BY created_at DESC`
	var rows []ticketRow
	if err := r.db.SelectContext(ctx, &rows, query, slotID); err != nil {
		return nil, fmt.Errorf("チケット一覧取得に失敗: %w", err)
	}
	tickets := make([]*ticket.Ticket, len(rows))
	for i, row := range rows {
		tickets[i] = row.toEntity()
	}
	return tickets, nil
}

func (r *TicketRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	sqlxTx := UnwrapTx(tx)
	query := `UPDATE tickets SET status = $1, qr_code = $2, updated_at = $3 WHERE id = $4`
	result, err := sqlxTx.ExecContext(ctx, query, string(t.Status), t.QRCode, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("チケット更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ticket.ErrTicketNotFound
	}
	return nil
}

func (r *TicketRepository) CountBySlotID(ctx context.Context, slotID string) (map[ticket.Status]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM tickets WHERE slot_id = $1 GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("チケット集計に失敗: %w", err)
	}
	defer rows.Close()

	counts := make(map[ticket.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("チケット集計に失敗: %w", err)
		}
		counts[ticket.Status(status)] = count
	}
	return counts, rows.Err()
}

var _ ticket.Repository = (*TicketRepository)(nil)
