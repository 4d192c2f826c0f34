package compiler

import (
	"sort"
	"strconv"
	"strings"
)

// SymbolFor derives an identifier from a resource name: upper case, every
// character outside [A-Z0-9_] replaced by '_', prefixed with R_ when the
// result would start with a digit.
func SymbolFor(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "R_" + s
	}
	return s
}

// BuildSymbols maps a symbol to every name. Explicit symbols are taken first;
// the remaining names get derived symbols in sorted order, with _2, _3...
// appended on collision.
func BuildSymbols(names []string, explicit map[string]string) map[string]string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	out := make(map[string]string, len(sorted))
	var derived []string
	for _, name := range sorted {
		if sym, ok := explicit[name]; ok && sym != "" {
			if _, taken := out[sym]; !taken {
				out[sym] = name
				continue
			}
		}
		derived = append(derived, name)
	}
	for _, name := range derived {
		base := SymbolFor(name)
		sym := base
		for i := 2; ; i++ {
			if _, taken := out[sym]; !taken {
				break
			}
			sym = base + "_" + strconv.Itoa(i)
		}
		out[sym] = name
	}
	return out
}
