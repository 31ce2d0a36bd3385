package universe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/equityrun/equityrun/internal/domain"
)

// Cache stores fetched constituent lists between runs. Mirrors the data
// layer's cache so a redis client can back both.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

const (
	constituentKeyPrefix = "equityrun:constituents:"
	maxPageBytes         = 10 << 20

	// Wikipedia rejects requests without a browser user agent.
	pageUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type parseFunc func(html string) ([]string, error)

// Index is one constituent list source page.
type Index struct {
	Name   string
	Market domain.Market
	URL    string
	parse  parseFunc
}

// DefaultIndexes returns the built-in constituent sources: S&P 500 and
// Nasdaq-100 for US, Hang Seng and HS Tech for HK, CSI 300 plus the ChiNext
// and STAR boards for CN.
func DefaultIndexes() []Index {
	return []Index{
		{Name: "SP500", Market: domain.MarketUS,
			URL: "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies", parse: parseUSTickers(400)},
		{Name: "NASDAQ100", Market: domain.MarketUS,
			URL: "https://en.wikipedia.org/wiki/Nasdaq-100", parse: parseUSTickers(80)},
		{Name: "HSI", Market: domain.MarketHK,
			URL: "https://en.wikipedia.org/wiki/Hang_Seng_Index", parse: parseSEHKCodes(20)},
		{Name: "HSTECH", Market: domain.MarketHK,
			URL: "https://zh.wikipedia.org/wiki/%E6%81%92%E7%94%9F%E7%A7%91%E6%8A%80%E6%8C%87%E6%95%B8", parse: parseHKDigitCodes(20)},
		{Name: "CSI300", Market: domain.MarketCN,
			URL: "https://en.wikipedia.org/wiki/CSI_300_Index", parse: parseCSI300(200)},
		{Name: "CHINEXT", Market: domain.MarketCN,
			URL: "https://zh.wikipedia.org/wiki/%E6%B7%B1%E5%9C%B3%E8%AF%81%E5%88%B8%E4%BA%A4%E6%98%93%E6%89%80%E5%88%9B%E4%B8%9A%E6%9D%BF%E4%B8%8A%E5%B8%82%E5%85%AC%E5%8F%B8%E5%88%97%E8%A1%A8", parse: parseCNBoard("30[012]", ".SZ")},
		{Name: "STAR", Market: domain.MarketCN,
			URL: "https://zh.wikipedia.org/wiki/%E4%B8%8A%E6%B5%B7%E8%AF%81%E5%88%B8%E4%BA%A4%E6%98%93%E6%89%80%E7%A7%91%E5%88%9B%E6%9D%BF%E4%B8%8A%E5%B8%82%E5%85%AC%E5%8F%B8%E5%88%97%E8%A1%A8", parse: parseCNBoard("68[89]", ".SS")},
	}
}

// ConstituentSource resolves a market's symbol universe from live index
// constituent pages, cached between runs, with the static watchlists as the
// always-available floor.
type ConstituentSource struct {
	client  *http.Client
	limiter *rate.Limiter
	cache   Cache
	expiry  time.Duration
	indexes []Index
}

// NewConstituentSource builds a source over the default indexes. cache may be
// nil; every run then refetches. expiry bounds how long a cached list is
// trusted.
func NewConstituentSource(cache Cache, expiry time.Duration) *ConstituentSource {
	return &ConstituentSource{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		cache:   cache,
		expiry:  expiry,
		indexes: DefaultIndexes(),
	}
}

// WithIndexes replaces the source pages.
func (s *ConstituentSource) WithIndexes(indexes []Index) *ConstituentSource {
	s.indexes = indexes
	return s
}

// Symbols returns the market's scan universe: every reachable index's
// constituents merged over the static watchlist. When no index can be
// fetched the watchlist alone is returned, so a scan always has symbols.
func (s *ConstituentSource) Symbols(ctx context.Context, market domain.Market) []string {
	var lists [][]string
	for _, idx := range s.indexes {
		if idx.Market != market {
			continue
		}
		symbols, err := s.constituents(ctx, idx)
		if err != nil {
			log.Warn().Str("index", idx.Name).Err(err).Msg("constituent fetch failed")
			continue
		}
		log.Debug().Str("index", idx.Name).Int("count", len(symbols)).Msg("constituents resolved")
		lists = append(lists, symbols)
	}
	if len(lists) == 0 {
		log.Warn().Str("market", string(market)).Msg("no index reachable, using static watchlist")
	}
	lists = append(lists, Watchlist(market))
	return Merge(lists...)
}

// cachedConstituents is the stored form of one fetched list.
type cachedConstituents struct {
	Timestamp time.Time `json:"timestamp"`
	Index     string    `json:"index"`
	Count     int       `json:"count"`
	Symbols   []string  `json:"symbols"`
}

func (s *ConstituentSource) constituents(ctx context.Context, idx Index) ([]string, error) {
	if cached := s.fromCache(ctx, idx.Name); cached != nil {
		return cached, nil
	}

	html, err := s.fetchPage(ctx, idx.URL)
	if err != nil {
		return nil, err
	}
	symbols, err := idx.parse(html)
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", idx.Name, err)
	}

	s.store(ctx, idx.Name, symbols)
	return symbols, nil
}

// fromCache returns a cached list still within the expiry window. The
// timestamp is checked even though the cache carries a TTL, so stores that
// never evict still honor the expiry.
func (s *ConstituentSource) fromCache(ctx context.Context, name string) []string {
	if s.cache == nil {
		return nil
	}
	raw, ok := s.cache.Get(ctx, constituentKeyPrefix+name)
	if !ok {
		return nil
	}
	var doc cachedConstituents
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Warn().Str("index", name).Err(err).Msg("constituent cache unreadable")
		return nil
	}
	if time.Since(doc.Timestamp) >= s.expiry || len(doc.Symbols) == 0 {
		return nil
	}
	return doc.Symbols
}

func (s *ConstituentSource) store(ctx context.Context, name string, symbols []string) {
	if s.cache == nil || len(symbols) == 0 {
		return
	}
	doc := cachedConstituents{
		Timestamp: time.Now().UTC(),
		Index:     name,
		Count:     len(symbols),
		Symbols:   symbols,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	s.cache.Set(ctx, constituentKeyPrefix+name, raw, s.expiry)
}

func (s *ConstituentSource) fetchPage(ctx context.Context, url string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", pageUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var (
	usTickerCell = regexp.MustCompile(`<td[^>]*>(?:\s*<a[^>]*>)?\s*([A-Z]{1,5}(?:[.\-][A-Z]{1,2})?)\s*(?:</a>)?\s*</td>`)
	sehkCode     = regexp.MustCompile(`SEHK:\s*(?:&nbsp;)?\s*(\d{1,5})`)
	hkDigitCode  = regexp.MustCompile(`\b(\d{5})\b`)
	csiTicker    = regexp.MustCompile(`(SSE|SZSE):\s*(?:&nbsp;)?\s*(\d{6})`)
)

// parseUSTickers extracts uppercase ticker cells from the page's tables.
// Dots become dashes to match the quote feed ("BRK.B" is quoted as "BRK-B").
func parseUSTickers(min int) parseFunc {
	return func(html string) ([]string, error) {
		seen := make(map[string]struct{})
		var symbols []string
		for _, m := range usTickerCell.FindAllStringSubmatch(html, -1) {
			sym := strings.ReplaceAll(m[1], ".", "-")
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
		if len(symbols) < min {
			return nil, fmt.Errorf("found %d ticker cells, want at least %d", len(symbols), min)
		}
		return symbols, nil
	}
}

// parseSEHKCodes extracts "SEHK: 700" style exchange links and normalizes
// them to four-digit quote symbols ("0700.HK").
func parseSEHKCodes(min int) parseFunc {
	return func(html string) ([]string, error) {
		seen := make(map[string]struct{})
		var symbols []string
		for _, m := range sehkCode.FindAllStringSubmatch(html, -1) {
			sym, ok := hkSymbol(m[1])
			if !ok {
				continue
			}
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
		if len(symbols) < min {
			return nil, fmt.Errorf("found %d stock codes, want at least %d", len(symbols), min)
		}
		return symbols, nil
	}
}

// parseHKDigitCodes extracts bare five-digit codes ("00700") as used on the
// Chinese-language index pages.
func parseHKDigitCodes(min int) parseFunc {
	return func(html string) ([]string, error) {
		seen := make(map[string]struct{})
		var symbols []string
		for _, m := range hkDigitCode.FindAllStringSubmatch(html, -1) {
			sym, ok := hkSymbol(m[1])
			if !ok {
				continue
			}
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
		if len(symbols) < min {
			return nil, fmt.Errorf("found %d stock codes, want at least %d", len(symbols), min)
		}
		return symbols, nil
	}
}

func hkSymbol(code string) (string, bool) {
	n, err := strconv.Atoi(code)
	if err != nil || n == 0 || n > 99999 {
		return "", false
	}
	return fmt.Sprintf("%04d.HK", n), true
}

// parseCSI300 extracts "SSE: 600519" / "SZSE: 300750" tickers and maps the
// exchange prefix to the quote suffix.
func parseCSI300(min int) parseFunc {
	return func(html string) ([]string, error) {
		seen := make(map[string]struct{})
		var symbols []string
		for _, m := range csiTicker.FindAllStringSubmatch(html, -1) {
			suffix := ".SS"
			if m[1] == "SZSE" {
				suffix = ".SZ"
			}
			sym := m[2] + suffix
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
		if len(symbols) < min {
			return nil, fmt.Errorf("found %d tickers, want at least %d", len(symbols), min)
		}
		return symbols, nil
	}
}

// parseCNBoard extracts six-digit board codes by leading-digit prefix:
// "30[012]" matches the ChiNext range, "68[89]" the STAR range.
func parseCNBoard(prefix, suffix string) parseFunc {
	re := regexp.MustCompile(`\b(` + prefix + `\d{3})\b`)
	return func(html string) ([]string, error) {
		seen := make(map[string]struct{})
		var symbols []string
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			sym := m[1] + suffix
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
		if len(symbols) == 0 {
			return nil, fmt.Errorf("no board codes found")
		}
		return symbols, nil
	}
}
