package datasource

import (
	"strings"
	"sync/atomic"
)

// SymbolList is a lock-free, swappable symbol list shared by the connectors.
type SymbolList struct {
	v atomic.Value
}

func NewSymbolList(symbols []string) *SymbolList {
	l := &SymbolList{}
	l.Store(symbols)
	return l
}

// Store normalizes (upper-case, trimmed, de-duplicated) and swaps the list.
func (l *SymbolList) Store(symbols []string) {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	l.v.Store(out)
}

func (l *SymbolList) Load() []string {
	s, _ := l.v.Load().([]string)
	return s
}
