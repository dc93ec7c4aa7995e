package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Coll76/nearbyhappenings/internal/domain/payment"
	"github.com/Coll76/nearbyhappenings/internal/domain/transaction"
)

type paymentRow struct {
	ID                    string          `db:"id"`
	TicketID              string          `db:"ticket_id"`
	Method                string          `db:"method"`
	Amount                decimal.Decimal `db:"amount"`
	Currency              string          `db:"currency"`
	Status                string          `db:"status"`
	ProviderTransactionID *string         `db:"provider_transaction_id"`
	FailureReason         *string         `db:"failure_reason"`
	ProviderMetadata      []byte          `db:"provider_metadata"`
	CompletedAt           *time.Time      `db:"completed_at"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

func (r *paymentRow) toEntity() *payment.Payment {
	return &payment.Payment{
		ID: r.ID, TicketID: r.TicketID,
		Method: payment.Method(r.Method), Amount: r.Amount, Currency: r.Currency,
		Status:                payment.Status(r.Status),
		ProviderTransactionID: r.ProviderTransactionID,
		FailureReason:         r.FailureReason,
		ProviderMetadata:      metadataFromJSON(r.ProviderMetadata),
		CompletedAt:           r.CompletedAt,
		CreatedAt:             r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func metadataJSON(md map[string]string) []byte {
	if len(md) == 0 {
		return []byte("{}")
	}
	b, _ := json.Marshal(md)
	return b
}

func metadataFromJSON(b []byte) map[string]string {
	var md map[string]string
	if len(b) == 0 || json.Unmarshal(b, &md) != nil || len(md) == 0 {
		return nil
	}
	return md
}

const paymentColumns = `id, ticket_id, method, amount, currency, status, provider_transaction_id, failure_reason, provider_metadata, completed_at, created_at, updated_at`

type PaymentRepository struct{ db *sqlx.DB }

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository { return &PaymentRepository{db: db} }

func (r *PaymentRepository) Create(ctx context.Context, tx transaction.Tx, p *payment.Payment) error {
	sqlxTx := UnwrapTx(tx)
	query := `INSERT INTO payments (ticket_id, method, amount, currency, status, provider_transaction_id, failure_reason, provider_metadata, completed_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	err := sqlxTx.QueryRowContext(ctx, query,
		p.TicketID, string(p.Method), p.Amount, p.Currency, string(p.Status),
		p.ProviderTransactionID, p.FailureReason, metadataJSON(p.ProviderMetadata),
		p.CompletedAt, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("決済作成に失敗: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) GetByTicketID(ctx context.Context, ticketID string) (*payment.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE ticket_id = $1 ORDER BY created_at DESC LIMIT 1`, ticketID)
}

func (r *PaymentRepository) GetByProviderTransactionID(ctx context.Context, providerTxID string) (*payment.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_transaction_id = $1`, providerTxID)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg any) (*payment.Payment, error) {
	var row paymentRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("決済取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

const paymentUpdateQuery = `UPDATE payments SET status = $1, provider_transaction_id = $2, failure_reason = $3, provider_metadata = $4, completed_at = $5, updated_at = $6 WHERE id = $7`

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	result, err := r.db.ExecContext(ctx, paymentUpdateQuery,
		string(p.Status), p.ProviderTransactionID, p.FailureReason,
		metadataJSON(p.ProviderMetadata), p.CompletedAt, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("決済更新に失敗: %w", err)
	}
	return checkUpdated(result)
}

func (r *PaymentRepository) UpdateInTx(ctx context.Context, tx transaction.Tx, p *payment.Payment) error {
	sqlxTx := UnwrapTx(tx)
	result, err := sqlxTx.ExecContext(ctx, paymentUpdateQuery,
		string(p.Status), p.ProviderTransactionID, p.FailureReason,
		metadataJSON(p.ProviderMetadata), p.CompletedAt, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("決済更新に失敗: %w", err)
	}
	return checkUpdated(result)
}

// UpdateInTxFromStatus は保存されている状態が expected の場合のみ更新する
// コールバック処理と取消処理が同じ決済へ同時に書き込む競合を検出する
func (r *PaymentRepository) UpdateInTxFromStatus(ctx context.Context, tx transaction.Tx, p *payment.Payment, expected payment.Status) error {
	sqlxTx := UnwrapTx(tx)
	result, err := sqlxTx.ExecContext(ctx, paymentUpdateQuery+` AND status = $8`,
		string(p.Status), p.ProviderTransactionID, p.FailureReason,
		metadataJSON(p.ProviderMetadata), p.CompletedAt, p.UpdatedAt, p.ID, string(expected))
	if err != nil {
		return fmt.Errorf("決済更新に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("決済更新に失敗: %w", err)
	}
	if rows == 0 {
		return payment.ErrStatusConflict
	}
	return nil
}

func checkUpdated(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("決済更新に失敗: %w", err)
	}
	if rows == 0 {
		return payment.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) ListStale(ctx context.Context, updatedBefore time.Time) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status IN ('pending', 'processing') AND updated_at < $1 ORDER BY updated_at`
	var rows []paymentRow
	if err := r.db.SelectContext(ctx, &rows, query, updatedBefore); err != nil {
		return nil, fmt.Errorf("決済一覧取得に失敗: %w", err)
	}
	payments := make([]*payment.Payment, len(rows))
	for i, row := range rows {
		payments[i] = row.toEntity()
	}
	return payments, nil
}

var _ payment.Repository = (*PaymentRepository)(nil)
