package storage

// sqlite.go — registro durable de intentos de copia.
//
// Estrategia:
//   - `copy_records`: UNA fila por transaction_id (la clave de idempotencia).
//     Se inserta al ejecutar la ventana y se muta después con la resolución.
//   - El set de idempotencia en memoria se hidrata desde aquí al arrancar;
//     la DB es la fuente de verdad, el set solo el índice O(1).
//   - Single-writer: solo el ledger escribe, con MaxOpenConns(1).

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS copy_records (
    transaction_id TEXT PRIMARY KEY,
    copied_at      DATETIME NOT NULL,
    status         TEXT     NOT NULL,
    order_id       TEXT     NOT NULL DEFAULT '',
    error          TEXT     NOT NULL DEFAULT '',
    market_key     TEXT     NOT NULL,
    market_slug    TEXT     NOT NULL DEFAULT '',
    title          TEXT     NOT NULL DEFAULT '',
    outcome        TEXT     NOT NULL DEFAULT '',
    outcome_ref    TEXT     NOT NULL DEFAULT '',
    is_hedge       INTEGER  NOT NULL DEFAULT 0,
    entry_price    REAL     NOT NULL DEFAULT 0,
    amount_spent   REAL     NOT NULL DEFAULT 0,
    resolved       INTEGER  NOT NULL DEFAULT 0,
    won            INTEGER,
    payout         REAL,
    profit         REAL
);

CREATE INDEX IF NOT EXISTS idx_records_copied   ON copy_records(copied_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_resolved ON copy_records(resolved, status);
`

// SQLiteStore implementa ports.RecordStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveRecord inserta (o reemplaza) el record de una transacción.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec domain.CopyRecord) error {
	isHedge := 0
	if rec.IsHedge {
		isHedge = 1
	}
	resolved := 0
	if rec.Resolved {
		resolved = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copy_records
			(transaction_id, copied_at, status, order_id, error,
			 market_key, market_slug, title, outcome, outcome_ref, is_hedge,
			 entry_price, amount_spent, resolved, won, payout, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			status       = excluded.status,
			order_id     = excluded.order_id,
			error        = excluded.error,
			market_slug  = excluded.market_slug,
			title        = excluded.title,
			entry_price  = excluded.entry_price,
			amount_spent = excluded.amount_spent
	`,
		rec.TransactionID,
		rec.CopiedAt.UTC(),
		string(rec.Status),
		rec.OrderID,
		rec.Error,
		rec.MarketKey,
		rec.MarketSlug,
		rec.Title,
		rec.Outcome,
		rec.OutcomeRef,
		isHedge,
		rec.EntryPrice,
		rec.AmountSpent,
		resolved,
		nullableBool(rec.Won),
		nullableFloat(rec.Payout),
		nullableFloat(rec.Profit),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRecord: %s: %w", rec.TransactionID, err)
	}
	return nil
}

// UpdateResolution muta en sitio los campos de liquidación de un record.
func (s *SQLiteStore) UpdateResolution(ctx context.Context, transactionID string, won bool, payout, profit float64) error {
	wonInt := 0
	if won {
		wonInt = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE copy_records
		SET resolved = 1, won = ?, payout = ?, profit = ?
		WHERE transaction_id = ?
	`, wonInt, payout, profit, transactionID)
	if err != nil {
		return fmt.Errorf("storage.UpdateResolution: %s: %w", transactionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateResolution: %s: no such record", transactionID)
	}
	return nil
}

// CopiedIDs devuelve todos los transaction_ids persistidos.
func (s *SQLiteStore) CopiedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT transaction_id FROM copy_records`)
	if err != nil {
		return nil, fmt.Errorf("storage.CopiedIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage.CopiedIDs: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentRecords devuelve hasta n records, el más reciente primero.
func (s *SQLiteStore) RecentRecords(ctx context.Context, n int) ([]domain.CopyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, copied_at, status, order_id, error,
		       market_key, market_slug, title, outcome, outcome_ref, is_hedge,
		       entry_price, amount_spent, resolved, won, payout, profit
		FROM copy_records
		ORDER BY copied_at DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentRecords: %w", err)
	}
	defer rows.Close()

	var recs []domain.CopyRecord
	for rows.Next() {
		var rec domain.CopyRecord
		var status string
		var copiedAt time.Time
		var isHedge, resolved int
		var won sql.NullInt64
		var payout, profit sql.NullFloat64

		if err := rows.Scan(
			&rec.TransactionID,
			&copiedAt,
			&status,
			&rec.OrderID,
			&rec.Error,
			&rec.MarketKey,
			&rec.MarketSlug,
			&rec.Title,
			&rec.Outcome,
			&rec.OutcomeRef,
			&isHedge,
			&rec.EntryPrice,
			&rec.AmountSpent,
			&resolved,
			&won,
			&payout,
			&profit,
		); err != nil {
			return nil, fmt.Errorf("storage.RecentRecords: scan: %w", err)
		}

		rec.CopiedAt = copiedAt
		rec.Status = domain.CopyStatus(status)
		rec.IsHedge = isHedge == 1
		rec.Resolved = resolved == 1
		if won.Valid {
			b := won.Int64 == 1
			rec.Won = &b
		}
		if payout.Valid {
			v := payout.Float64
			rec.Payout = &v
		}
		if profit.Valid {
			v := profit.Float64
			rec.Profit = &v
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
