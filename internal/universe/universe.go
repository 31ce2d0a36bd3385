// Package universe supplies the per-market symbol watchlists and the
// symbol→market classification the scan pipeline runs over. Lists are static
// fallbacks; a dynamic constituent source can replace them per market.
package universe

import (
	"sort"
	"strings"

	"github.com/equityrun/equityrun/internal/domain"
)

// usWatchlist covers large-cap blue chips, US-listed China ADRs and the core
// AI complex.
var usWatchlist = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA",
	"META", "TSLA", "BRK-B", "JPM", "V",
	"UNH", "MA", "HD", "PG", "JNJ",
	"COST", "ABBV", "CRM", "AMD", "NFLX",
	"LLY", "AVGO", "WMT", "PEP", "KO",
	"MRK", "TMO", "ADBE", "CSCO", "ACN",
	"BABA", "JD", "PDD", "BIDU", "NTES",
	"BILI", "TME", "NIO", "XPEV", "LI",
	"TAL", "EDU", "FUTU", "TCOM", "BEKE",
	"HTHT", "ZTO", "VIPS", "GDS", "VNET",
	"ARM", "MRVL", "TSM", "ASML", "ANET",
	"SMCI", "PLTR", "SNOW", "MU", "VRT",
	"DELL", "ORCL", "NOW", "PANW", "CRWD",
}

// hkWatchlist covers Hang Seng and Hang Seng Tech core constituents.
var hkWatchlist = []string{
	"0700.HK", "9988.HK", "9618.HK", "1810.HK", "3690.HK",
	"0005.HK", "1299.HK", "2318.HK", "0941.HK", "0388.HK",
	"2020.HK", "9999.HK", "1024.HK", "0027.HK", "0669.HK",
	"2269.HK", "6060.HK", "1211.HK", "9626.HK", "0981.HK",
	"0001.HK", "0003.HK", "0011.HK", "0016.HK", "0066.HK",
	"0175.HK", "0241.HK", "0267.HK", "0883.HK", "1038.HK",
	"1347.HK", "2015.HK", "0268.HK", "0772.HK", "0285.HK",
	"6618.HK", "2518.HK", "0522.HK", "9698.HK", "1833.HK",
}

// cnWatchlist covers CSI 300, ChiNext and STAR Market core constituents.
var cnWatchlist = []string{
	"600519.SS", "601318.SS", "600036.SS", "601166.SS", "600276.SS",
	"600900.SS", "601888.SS", "603259.SS", "600309.SS", "601012.SS",
	"000333.SZ", "000858.SZ", "000001.SZ", "000568.SZ", "000651.SZ",
	"300750.SZ", "300059.SZ", "300274.SZ", "300124.SZ", "300760.SZ",
	"300015.SZ", "300014.SZ", "300033.SZ", "300122.SZ", "300308.SZ",
	"688981.SS", "688111.SS", "688012.SS", "688041.SS", "688036.SS",
	"688008.SS", "688271.SS", "688599.SS", "688126.SS", "688303.SS",
}

// Watchlist returns a copy of the static watchlist for one market.
func Watchlist(market domain.Market) []string {
	var src []string
	switch market {
	case domain.MarketUS:
		src = usWatchlist
	case domain.MarketHK:
		src = hkWatchlist
	case domain.MarketCN:
		src = cnWatchlist
	default:
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// All returns every market's watchlist merged and deduplicated.
func All() []string {
	return Merge(Watchlist(domain.MarketUS), Watchlist(domain.MarketHK), Watchlist(domain.MarketCN))
}

// Merge concatenates symbol lists preserving first-seen order, dropping
// duplicates and empty entries.
func Merge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, symbol := range list {
			symbol = strings.TrimSpace(symbol)
			if symbol == "" {
				continue
			}
			if _, ok := seen[symbol]; ok {
				continue
			}
			seen[symbol] = struct{}{}
			out = append(out, symbol)
		}
	}
	return out
}

// MarketOf classifies a symbol by its exchange suffix: ".HK" is Hong Kong,
// ".SS"/".SZ" are the mainland exchanges, everything else is treated as a
// US listing.
func MarketOf(symbol string) domain.Market {
	upper := strings.ToUpper(symbol)
	switch {
	case strings.HasSuffix(upper, ".HK"):
		return domain.MarketHK
	case strings.HasSuffix(upper, ".SS"), strings.HasSuffix(upper, ".SZ"):
		return domain.MarketCN
	default:
		return domain.MarketUS
	}
}

// GroupByMarket splits symbols into per-market lists, each sorted for
// reproducible fetch order.
func GroupByMarket(symbols []string) map[domain.Market][]string {
	out := make(map[domain.Market][]string)
	for _, symbol := range Merge(symbols) {
		market := MarketOf(symbol)
		out[market] = append(out[market], symbol)
	}
	for _, list := range out {
		sort.Strings(list)
	}
	return out
}
