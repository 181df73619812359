package domain

import "time"

// CopyStatus is the terminal state of a copy attempt.
type CopyStatus string

const (
	CopySuccess CopyStatus = "success"
	CopyFailed  CopyStatus = "failed"
	CopySkipped CopyStatus = "skipped"
)

// CopyRecord es el registro persistido de un intento de copia. Se inserta
// en cuanto la ventana ejecuta y se muta después, cuando llega la
// resolución del mercado.
type CopyRecord struct {
	TransactionID string     `json:"transactionId"`
	CopiedAt      time.Time  `json:"copiedAt"`
	Status        CopyStatus `json:"status"`
	OrderID       string     `json:"orderId,omitempty"`
	Error         string     `json:"error,omitempty"`

	MarketKey  string `json:"marketKey"`
	MarketSlug string `json:"marketSlug,omitempty"`
	Title      string `json:"title,omitempty"`
	Outcome    string `json:"outcome"`
	OutcomeRef string `json:"outcomeRef,omitempty"`
	IsHedge    bool   `json:"isHedge"`

	EntryPrice  float64 `json:"entryPrice"`
	AmountSpent float64 `json:"amountSpent"`

	// Filled later, when external settlement data is applied.
	Resolved bool     `json:"resolved"`
	Won      *bool    `json:"won,omitempty"`
	Payout   *float64 `json:"payout,omitempty"`
	Profit   *float64 `json:"profit,omitempty"`
}

// Shares bought by this record at its entry price.
func (r CopyRecord) Shares() float64 {
	if r.EntryPrice <= 0 {
		return 0
	}
	return r.AmountSpent / r.EntryPrice
}

// ROISummary is the rollup derived from the copy record log. It is never
// authoritative on its own — it can always be rebuilt by scanning records.
type ROISummary struct {
	Resolved    int     `json:"resolved"`
	Won         int     `json:"won"`
	Lost        int     `json:"lost"`
	WinRate     float64 `json:"winRate"`
	TotalSpent  float64 `json:"totalSpent"`
	TotalPayout float64 `json:"totalPayout"`
	Profit      float64 `json:"profit"`
	ROI         float64 `json:"roi"`
}

// Summarize scans records and derives the ROI rollup. Only success records
// count toward spend; profit and ROI are measured over resolved positions,
// so open positions are not reported as losses.
func Summarize(records []CopyRecord) ROISummary {
	var s ROISummary
	var resolvedSpent float64
	for _, r := range records {
		if r.Status != CopySuccess {
			continue
		}
		s.TotalSpent += r.AmountSpent
		if !r.Resolved {
			continue
		}
		s.Resolved++
		resolvedSpent += r.AmountSpent
		if r.Won != nil && *r.Won {
			s.Won++
		} else {
			s.Lost++
		}
		if r.Payout != nil {
			s.TotalPayout += *r.Payout
		}
	}
	s.Profit = s.TotalPayout - resolvedSpent
	if s.Resolved > 0 {
		s.WinRate = float64(s.Won) / float64(s.Resolved)
	}
	if resolvedSpent > 0 {
		s.ROI = s.Profit / resolvedSpent
	}
	return s
}

// MarketResolution is what the external settlement source reports for a
// market. The engine records it; it never determines it.
type MarketResolution struct {
	Resolved       bool
	WinningOutcome string
}
