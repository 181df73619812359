package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// SnapshotDocument es el documento JSON que se publica periódicamente:
// rollup + los N records más recientes. Es derivable de la DB — perderlo
// nunca es fatal.
type SnapshotDocument struct {
	LastUpdated      time.Time           `json:"lastUpdated"`
	TotalCopiedCount int                 `json:"totalCopiedCount"`
	Summary          domain.ROISummary   `json:"summary"`
	Records          []domain.CopyRecord `json:"records"`
}

// WriteSnapshot escribe el documento de forma atómica (tmp + rename) para
// que un crash a mitad de escritura nunca deje un JSON truncado.
func WriteSnapshot(path string, doc SnapshotDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("storage.WriteSnapshot: marshal: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage.WriteSnapshot: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage.WriteSnapshot: rename: %w", err)
	}
	return nil
}
