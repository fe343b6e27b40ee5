package providers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Metadata Provider -- name/symbol/URI quality, pure string analysis
// ---------------------------------------------------------------------------

var (
	scamKeywords = regexp.MustCompile(`(?i)(scam|rug|honeypot|free\s*money|100+x|1000+x|guaranteed|send.*sol|airdrop.*claim)`)
	spamPatterns = regexp.MustCompile(`(?i)(test|testing|asdf|qwerty|aaaa|1234|abcd)`)
	trendingMeme = regexp.MustCompile(`(?i)(trump|biden|elon|musk|doge|pepe|shib|bonk|wojak|cat|dog|moon|rocket|ai\s*bot)`)
	// Zero-width and lookalike characters used to fake established names.
	suspiciousChars = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00A0}]`)
)

// MetadataProvider scores token metadata. No RPC, no cache: every signal is
// derived from the launch event itself, so it always runs on the hot path.
type MetadataProvider struct {
	minNameLen   int
	maxNameLen   int
	minSymbolLen int
	maxSymbolLen int
}

// NewMetadata creates the provider with standard length bounds.
func NewMetadata() *MetadataProvider {
	return &MetadataProvider{
		minNameLen:   2,
		maxNameLen:   32,
		minSymbolLen: 2,
		maxSymbolLen: 10,
	}
}

func (p *MetadataProvider) Name() string { return "metadata" }

func (p *MetadataProvider) Types() []signal.Type {
	return []signal.Type{signal.TypeNameQuality, signal.TypeSymbolQuality, signal.TypeURIAnalysis}
}

func (p *MetadataProvider) Hot() bool { return true }

func (p *MetadataProvider) MaxLatency() time.Duration { return 5 * time.Millisecond }

func (p *MetadataProvider) TokenSignals(ctx context.Context, tc *signal.TokenContext) []signal.Signal {
	start := time.Now()
	out := []signal.Signal{
		p.scoreName(tc.Name),
		p.scoreSymbol(tc.Symbol),
		p.scoreURI(tc.URI),
	}
	ms := int(time.Since(start).Milliseconds())
	for i := range out {
		out[i].LatencyMs = ms
	}
	return out
}

func (p *MetadataProvider) scoreName(name string) signal.Signal {
	name = strings.TrimSpace(name)
	if name == "" {
		return signal.New(signal.TypeNameQuality, -0.8, 0.95, "Empty or whitespace-only name")
	}
	if scamKeywords.MatchString(name) {
		return signal.New(signal.TypeNameQuality, -0.9, 0.95, "Name contains scam keyword pattern")
	}
	if spamPatterns.MatchString(name) {
		return signal.New(signal.TypeNameQuality, -0.5, 0.8, "Name appears to be test/spam token")
	}
	if suspiciousChars.MatchString(name) {
		return signal.New(signal.TypeNameQuality, -0.6, 0.85, "Name contains suspicious characters")
	}
	if len(name) < p.minNameLen {
		return signal.New(signal.TypeNameQuality, -0.4, 0.7, fmt.Sprintf("Name too short: %d chars", len(name)))
	}
	if len(name) > p.maxNameLen {
		return signal.New(signal.TypeNameQuality, -0.2, 0.6, fmt.Sprintf("Name unusually long: %d chars", len(name)))
	}
	if len(name) > 4 && allCaps(name) {
		return signal.New(signal.TypeNameQuality, -0.2, 0.5, "All caps name (often spam)")
	}
	if trendingMeme.MatchString(name) {
		// low confidence, memes cut both ways
		return signal.New(signal.TypeNameQuality, 0.1, 0.4, "Name matches trending pattern")
	}
	return signal.Neutral(signal.TypeNameQuality, "Name appears normal")
}

func (p *MetadataProvider) scoreSymbol(symbol string) signal.Signal {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return signal.New(signal.TypeSymbolQuality, -0.7, 0.95, "Empty or whitespace-only symbol")
	}
	if scamKeywords.MatchString(symbol) {
		return signal.New(signal.TypeSymbolQuality, -0.8, 0.9, "Symbol contains scam keyword")
	}
	if len(symbol) < p.minSymbolLen {
		return signal.New(signal.TypeSymbolQuality, -0.3, 0.7, fmt.Sprintf("Symbol too short: %d chars", len(symbol)))
	}
	if len(symbol) > p.maxSymbolLen {
		return signal.New(signal.TypeSymbolQuality, -0.2, 0.6, fmt.Sprintf("Symbol unusually long: %d chars", len(symbol)))
	}
	for _, r := range symbol {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '$' {
			return signal.New(signal.TypeSymbolQuality, -0.3, 0.6, "Symbol contains unusual characters")
		}
	}
	return signal.Neutral(signal.TypeSymbolQuality, "Symbol appears normal")
}

func (p *MetadataProvider) scoreURI(uri string) signal.Signal {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return signal.New(signal.TypeURIAnalysis, -0.3, 0.6, "No metadata URI provided")
	}
	if strings.Contains(uri, "bit.ly") || strings.Contains(uri, "tinyurl") || strings.Contains(uri, "t.co") {
		return signal.New(signal.TypeURIAnalysis, -0.5, 0.7, "URI uses URL shortener (suspicious)")
	}
	if strings.Contains(uri, "arweave.net") || strings.Contains(uri, "ipfs.io") ||
		strings.Contains(uri, "nftstorage.link") || strings.Contains(uri, "pinata.cloud") {
		return signal.New(signal.TypeURIAnalysis, 0.1, 0.6, "URI uses established hosting")
	}
	if !strings.HasPrefix(uri, "https://") && !strings.HasPrefix(uri, "ipfs://") && !strings.HasPrefix(uri, "ar://") {
		return signal.New(signal.TypeURIAnalysis, -0.2, 0.5, "URI doesn't use secure protocol")
	}
	return signal.Neutral(signal.TypeURIAnalysis, "URI appears standard")
}

// allCaps reports whether every letter in s is uppercase. Strings with no
// letters count as all caps.
func allCaps(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
