package domain

// MarketInfo is display metadata for a market, fetched lazily when the feed
// payload arrives without it.
type MarketInfo struct {
	Slug  string
	Title string
}
