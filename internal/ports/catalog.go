package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// MarketCatalog looks up display metadata for a market. Lookups are best
// effort: a miss degrades record and notification text, nothing else.
type MarketCatalog interface {
	MarketInfo(ctx context.Context, marketKey string) (domain.MarketInfo, error)
}
