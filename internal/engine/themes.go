package engine

import (
	"sort"
	"strings"
	"sync"
)

// CategoryTable maps instrument symbols to theme categories. The stock
// table is static; administrative extension appends symbols but never
// reclassifies events already stored in a window.
type CategoryTable struct {
	mu       sync.RWMutex
	emoji    map[string]string // theme -> display emoji
	bySymbol map[string]string // SYMBOL -> theme
}

// NewCategoryTable builds the default theme table.
func NewCategoryTable() *CategoryTable {
	themes := map[string]struct {
		emoji   string
		symbols []string
	}{
		"AI":             {"🤖", []string{"ARKM", "FET", "RNDR", "TAO", "OCEAN", "GLM", "AI", "AGIX", "PHB", "AKT", "NMR"}},
		"GAMING":         {"🎮", []string{"IMX", "GALA", "SAND", "MANA", "AXS", "ILV", "ENJ", "FLOW", "RON", "YGG", "PIXEL", "BEAM"}},
		"DEFI":           {"🏦", []string{"UNI", "AAVE", "SNX", "CRV", "COMP", "YFI", "BAL", "1INCH", "DYDX", "GMX", "GNS", "JOE"}},
		"MEME":           {"🐸", []string{"DOGE", "SHIB", "PEPE", "FLOKI", "BONK", "WIF", "BOME", "POPCAT", "MEW", "PNUT"}},
		"LAYER1":         {"⛓️", []string{"BTC", "ETH", "SOL", "ADA", "DOT", "ATOM", "NEAR", "FTM", "ALGO", "AVAX"}},
		"LAYER2":         {"🔗", []string{"ARB", "OP", "MATIC", "LRC", "ZK", "METIS", "BOBA", "MANTA"}},
		"ORACLES":        {"🔮", []string{"LINK", "BAND", "TRB", "API3", "UMA", "DIA"}},
		"INFRASTRUCTURE": {"🏗️", []string{"GRT", "FIL", "AR", "STORJ", "THETA", "LPT", "ANKR"}},
		"PRIVACY":        {"🕵️", []string{"XMR", "ZEC", "SCRT", "ROSE", "NYM", "RAIL"}},
		"RWA":            {"🏠", []string{"RIO", "TRU", "CFG", "MKR", "RWA", "ONDO", "POLYX"}},
	}

	t := &CategoryTable{
		emoji:    make(map[string]string, len(themes)),
		bySymbol: make(map[string]string),
	}
	for theme, def := range themes {
		t.emoji[theme] = def.emoji
		for _, sym := range def.symbols {
			t.bySymbol[strings.ToUpper(sym)] = theme
		}
	}
	return t
}

// Classify resolves a symbol to its theme; ok is false for
// uncategorized instruments.
func (t *CategoryTable) Classify(symbol string) (theme string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	theme, ok = t.bySymbol[strings.ToUpper(symbol)]
	return theme, ok
}

func (t *CategoryTable) Emoji(theme string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.emoji[theme]; ok {
		return e
	}
	return "📊"
}

func (t *CategoryTable) Themes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.emoji))
	for theme := range t.emoji {
		out = append(out, theme)
	}
	sort.Strings(out)
	return out
}

// Extend adds symbols to a theme, creating the theme if new. Existing
// symbol mappings are not overwritten.
func (t *CategoryTable) Extend(theme, emoji string, symbols []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.emoji[theme]; !ok {
		if emoji == "" {
			emoji = "📊"
		}
		t.emoji[theme] = emoji
	}
	for _, sym := range symbols {
		key := strings.ToUpper(sym)
		if _, taken := t.bySymbol[key]; !taken {
			t.bySymbol[key] = theme
		}
	}
}
