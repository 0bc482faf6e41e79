package resolver

import (
	"fmt"
	"regexp"
	"sort"
)

var nonWord = regexp.MustCompile(`\W`)

// sanitizeName turns an arbitrary string into a valid GraphQL name by
// replacing every non-word character with an underscore.
func sanitizeName(raw string) string {
	name := nonWord.ReplaceAllString(raw, "_")
	switch {
	case name == "":
		return "_"
	case name[0] >= '0' && name[0] <= '9':
		return "_" + name
	case name == "true" || name == "false" || name == "null":
		return "_" + name
	}
	return name
}

// symbolTable assigns a unique symbol to every value and keeps the way back.
// Values that sanitize to the same symbol are told apart by a numeric suffix,
// given in sorted value order.
type symbolTable struct {
	bySymbol map[string]string
	byValue  map[string]string
}

func newSymbolTable(values []string) *symbolTable {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)

	t := &symbolTable{
		bySymbol: make(map[string]string, len(sorted)),
		byValue:  make(map[string]string, len(sorted)),
	}
	for _, value := range sorted {
		if _, ok := t.byValue[value]; ok {
			continue
		}
		base := sanitizeName(value)
		symbol := base
		for n := 2; ; n++ {
			if _, taken := t.bySymbol[symbol]; !taken {
				break
			}
			symbol = fmt.Sprintf("%s_%d", base, n)
		}
		t.bySymbol[symbol] = value
		t.byValue[value] = symbol
	}
	return t
}

func (t *symbolTable) symbol(value string) (string, bool) {
	s, ok := t.byValue[value]
	return s, ok
}

func (t *symbolTable) value(symbol string) (string, bool) {
	v, ok := t.bySymbol[symbol]
	return v, ok
}
