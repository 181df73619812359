package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const gammaMarketsPath = "/markets"

// gammaMarket es el subconjunto de campos de Gamma que nos interesan.
type gammaMarket struct {
	ConditionID   string `json:"conditionId"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	Closed        bool   `json:"closed"`
	Outcomes      string `json:"outcomes"`      // JSON array codificado como string
	OutcomePrices string `json:"outcomePrices"` // idem, "1" gana / "0" pierde
}

// Resolution consulta Gamma para saber si un mercado ya resolvió y qué
// outcome ganó. Implementa ports.MarketResolver.
func (c *Client) Resolution(ctx context.Context, marketKey string) (domain.MarketResolution, error) {
	url := fmt.Sprintf("%s%s?condition_ids=%s&limit=1", c.gammaBase, gammaMarketsPath, marketKey)

	var resp []gammaMarket
	if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
		return domain.MarketResolution{}, fmt.Errorf("gamma.Resolution: %w", err)
	}
	if len(resp) == 0 {
		return domain.MarketResolution{}, nil
	}

	gm := resp[0]
	if !gm.Closed {
		return domain.MarketResolution{}, nil
	}

	winner, ok := winningOutcome(gm.Outcomes, gm.OutcomePrices)
	if !ok {
		// Cerrado pero sin precio definitivo todavía — tratar como no resuelto.
		slog.Debug("gamma: closed market without settled prices", "market", marketKey)
		return domain.MarketResolution{}, nil
	}

	return domain.MarketResolution{Resolved: true, WinningOutcome: winner}, nil
}

// MarketInfo devuelve slug y título de un mercado. Implementa
// ports.MarketCatalog; se usa como fallback cuando el feed manda el trade
// sin metadata.
func (c *Client) MarketInfo(ctx context.Context, marketKey string) (domain.MarketInfo, error) {
	url := fmt.Sprintf("%s%s?condition_ids=%s&limit=1", c.gammaBase, gammaMarketsPath, marketKey)

	var resp []gammaMarket
	if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("gamma.MarketInfo: %w", err)
	}
	if len(resp) == 0 {
		return domain.MarketInfo{}, fmt.Errorf("gamma.MarketInfo: %s: not found", marketKey)
	}

	return domain.MarketInfo{Slug: resp[0].Slug, Title: resp[0].Question}, nil
}

// winningOutcome decodifica los arrays paralelos de Gamma y devuelve el
// outcome cuyo precio liquidó por encima de 0.5.
func winningOutcome(outcomesJSON, pricesJSON string) (string, bool) {
	var outcomes []string
	var prices []json.Number
	if json.Unmarshal([]byte(outcomesJSON), &outcomes) != nil {
		return "", false
	}
	if json.Unmarshal([]byte(pricesJSON), &prices) != nil {
		return "", false
	}
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return "", false
	}

	for i, p := range prices {
		f, err := p.Float64()
		if err != nil {
			continue
		}
		if f > 0.5 {
			return outcomes[i], true
		}
	}
	return "", false
}
