package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// RecordStore persists copy records durably. The ledger is the only writer.
type RecordStore interface {
	// SaveRecord inserts or replaces the record keyed by transaction id.
	SaveRecord(ctx context.Context, rec domain.CopyRecord) error

	// UpdateResolution fills the settlement fields of an existing record.
	UpdateResolution(ctx context.Context, transactionID string, won bool, payout, profit float64) error

	// CopiedIDs returns every persisted transaction id, used to hydrate the
	// in-memory idempotency set at startup.
	CopiedIDs(ctx context.Context) ([]string, error)

	// RecentRecords returns up to n records, newest first.
	RecentRecords(ctx context.Context, n int) ([]domain.CopyRecord, error)

	Close() error
}
