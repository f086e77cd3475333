// Package symbols folds vendor and legacy instrument names into the canonical
// bases the widgets display.
package symbols

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"quotedesk/internal/feed"
)

//go:embed symbols.yaml
var tableYAML []byte

const DefaultDecimals = 2

var currencyPrefix = regexp.MustCompile(`^(?i:IDR|USD)`)

type tableFile struct {
	Order       []string          `yaml:"order"`
	Aliases     map[string]string `yaml:"aliases"`
	Preferences map[string]string `yaml:"preferences"`
	Labels      map[string]string `yaml:"labels"`
	Decimals    map[string]int    `yaml:"decimals"`
}

// Table is immutable once parsed.
type Table struct {
	order    []string
	index    map[string]int
	aliases  map[string]string
	prefer   map[string]*regexp.Regexp
	labels   map[string]string
	decimals map[string]int
}

var defaultTable = mustParse(tableYAML)

// Default returns the table compiled into the binary.
func Default() *Table { return defaultTable }

func mustParse(b []byte) *Table {
	t, err := Parse(b)
	if err != nil {
		panic(fmt.Sprintf("symbols: embedded table: %v", err))
	}
	return t
}

// Parse reads a YAML symbol table.
func Parse(b []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if len(f.Order) == 0 {
		return nil, fmt.Errorf("table has no display order")
	}

	t := &Table{
		order:    make([]string, 0, len(f.Order)),
		index:    make(map[string]int, len(f.Order)),
		aliases:  make(map[string]string, len(f.Aliases)),
		prefer:   make(map[string]*regexp.Regexp, len(f.Preferences)),
		labels:   make(map[string]string, len(f.Labels)),
		decimals: make(map[string]int, len(f.Decimals)),
	}
	for _, b := range f.Order {
		b = strings.ToUpper(strings.TrimSpace(b))
		if _, dup := t.index[b]; dup {
			return nil, fmt.Errorf("base %s listed twice", b)
		}
		t.index[b] = len(t.order)
		t.order = append(t.order, b)
	}
	for from, to := range f.Aliases {
		t.aliases[strings.ToUpper(from)] = strings.ToUpper(to)
	}
	// an alias target that is itself aliased would make canonicalization order-dependent
	for from, to := range t.aliases {
		if _, chained := t.aliases[to]; chained {
			return nil, fmt.Errorf("alias %s -> %s points at another alias", from, to)
		}
	}
	for base, pattern := range f.Preferences {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("preference for %s: %w", base, err)
		}
		t.prefer[strings.ToUpper(base)] = re
	}
	for base, label := range f.Labels {
		t.labels[strings.ToUpper(base)] = label
	}
	for base, d := range f.Decimals {
		t.decimals[strings.ToUpper(base)] = d
	}
	return t, nil
}

// SplitPrefix separates a leading IDR/USD currency prefix from the rest of the symbol.
func SplitPrefix(symbol string) (prefix, rest string) {
	prefix = currencyPrefix.FindString(symbol)
	return prefix, symbol[len(prefix):]
}

// NormalizeBase strips the currency prefix and everything from the first
// underscore on, e.g. "idrAU1010_BBJ" -> "AU1010".
func NormalizeBase(symbol string) string {
	_, rest := SplitPrefix(symbol)
	if i := strings.IndexByte(rest, '_'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(strings.ToUpper(rest))
}

// CanonicalBase maps a legacy base onto its current name; unknown bases pass through.
func (t *Table) CanonicalBase(base string) string {
	if to, ok := t.aliases[base]; ok {
		return to
	}
	return base
}

// Canonical is NormalizeBase followed by CanonicalBase.
func (t *Table) Canonical(symbol string) string {
	return t.CanonicalBase(NormalizeBase(symbol))
}

// CanonicalFull rewrites only the base segment of a raw symbol, keeping the
// currency prefix and any suffix verbatim.
func (t *Table) CanonicalFull(symbol string) string {
	if symbol == "" {
		return ""
	}
	prefix, rest := SplitPrefix(symbol)
	base := NormalizeBase(symbol)
	canonical := t.CanonicalBase(base)
	if base == "" || base == canonical {
		return symbol
	}
	if len(rest) >= len(base) && strings.EqualFold(rest[:len(base)], base) {
		rest = canonical + rest[len(base):]
	}
	return prefix + rest
}

// PickPreferred chooses the authoritative tick among those that share a
// canonical base: the first whose prefix-less symbol matches the base's
// preference pattern, else the first one. Nil only when ticks is empty.
func (t *Table) PickPreferred(base string, ticks []feed.Tick) *feed.Tick {
	if len(ticks) == 0 {
		return nil
	}
	if re, ok := t.prefer[base]; ok {
		for i := range ticks {
			_, rest := SplitPrefix(ticks[i].Symbol)
			if re.MatchString(rest) {
				return &ticks[i]
			}
		}
	}
	return &ticks[0]
}

// Selection is the tick chosen for one canonical base.
type Selection struct {
	Base string
	Tick feed.Tick
}

// Group buckets ticks by canonical base, drops bases outside the display
// order and returns one selection per remaining base, in display order.
func (t *Table) Group(ticks []feed.Tick) []Selection {
	buckets := make(map[string][]feed.Tick)
	for _, tk := range ticks {
		base := t.Canonical(tk.Symbol)
		if _, ok := t.index[base]; !ok {
			continue
		}
		buckets[base] = append(buckets[base], tk)
	}

	out := make([]Selection, 0, len(buckets))
	for _, base := range t.order {
		chosen := t.PickPreferred(base, buckets[base])
		if chosen == nil {
			continue
		}
		out = append(out, Selection{Base: base, Tick: *chosen})
	}
	return out
}

func (t *Table) Allowed(base string) bool {
	_, ok := t.index[base]
	return ok
}

// Order returns a copy of the display order.
func (t *Table) Order() []string {
	return append([]string(nil), t.order...)
}

// Rank is the display position of a canonical base, or -1.
func (t *Table) Rank(base string) int {
	if i, ok := t.index[base]; ok {
		return i
	}
	return -1
}

func (t *Table) Label(base string) (string, bool) {
	l, ok := t.labels[base]
	return l, ok
}

// Decimals is the fixed number of fraction digits used for a raw or canonical symbol.
func (t *Table) Decimals(symbol string) int {
	if d, ok := t.decimals[t.Canonical(symbol)]; ok {
		return d
	}
	return DefaultDecimals
}
