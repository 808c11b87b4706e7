package engine

import "testing"

func TestClassifyKnownSymbols(t *testing.T) {
	table := NewCategoryTable()

	cases := map[string]string{
		"RNDR": "AI",
		"fet":  "AI", // case-insensitive
		"UNI":  "DEFI",
		"PEPE": "MEME",
		"BTC":  "LAYER1",
		"ARB":  "LAYER2",
		"LINK": "ORACLES",
	}
	for sym, want := range cases {
		theme, ok := table.Classify(sym)
		if !ok {
			t.Errorf("%s: not classified", sym)
			continue
		}
		if theme != want {
			t.Errorf("%s: theme %s, want %s", sym, theme, want)
		}
	}

	if _, ok := table.Classify("OBSCURECOIN"); ok {
		t.Error("unknown symbol should not classify")
	}
}

func TestEmojiFallback(t *testing.T) {
	table := NewCategoryTable()
	if got := table.Emoji("AI"); got != "🤖" {
		t.Errorf("AI emoji = %q", got)
	}
	if got := table.Emoji("NOPE"); got != "📊" {
		t.Errorf("fallback emoji = %q, want 📊", got)
	}
}

func TestExtendDoesNotReclassify(t *testing.T) {
	table := NewCategoryTable()
	table.Extend("DEPIN", "📡", []string{"HNT", "RNDR"})

	theme, ok := table.Classify("HNT")
	if !ok || theme != "DEPIN" {
		t.Errorf("HNT: %s/%v, want DEPIN", theme, ok)
	}
	// RNDR was already an AI symbol and stays one.
	if theme, _ := table.Classify("RNDR"); theme != "AI" {
		t.Errorf("RNDR reclassified to %s", theme)
	}
	if got := table.Emoji("DEPIN"); got != "📡" {
		t.Errorf("DEPIN emoji = %q", got)
	}
}
