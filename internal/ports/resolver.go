package ports

import (
	"context"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// MarketResolver reports external settlement data for a market. The engine
// only records what the resolver says — determining resolutions is out of
// scope here.
type MarketResolver interface {
	Resolution(ctx context.Context, marketKey string) (domain.MarketResolution, error)
}
