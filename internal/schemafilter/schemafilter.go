// Package schemafilter applies allow/deny filters to catalog operations before
// the schema is synthesized from them.
package schemafilter

import (
	"path"
	"strings"

	"bte-graphql/internal/metakg"
)

// Config controls allow/deny filters for source APIs and semantic types.
type Config struct {
	AllowAPIs  []string `mapstructure:"allow_apis"`
	DenyAPIs   []string `mapstructure:"deny_apis"`
	AllowTypes []string `mapstructure:"allow_types"`
	DenyTypes  []string `mapstructure:"deny_types"`
}

// Apply returns the operations that pass the filters, in their original order.
// Missing allow lists default to allow-all; deny rules always win. Type patterns
// are matched against both the namespaced and the bare type name, so
// "Gene" and "biolink:Gene" select the same operations.
func Apply(ops []metakg.Operation, cfg Config) []metakg.Operation {
	filtered := make([]metakg.Operation, 0, len(ops))
	for _, op := range ops {
		if !allowed([]string{op.Association.APIName}, cfg.AllowAPIs, cfg.DenyAPIs) {
			continue
		}
		if !allowed(typeForms(op.Association.InputType), cfg.AllowTypes, cfg.DenyTypes) {
			continue
		}
		if !allowed(typeForms(op.Association.OutputType), cfg.AllowTypes, cfg.DenyTypes) {
			continue
		}
		filtered = append(filtered, op)
	}
	return filtered
}

func typeForms(name string) []string {
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		return []string{name, name[idx+1:]}
	}
	return []string{name}
}

func allowed(values, allow, deny []string) bool {
	for _, value := range values {
		if matchesAny(value, deny) {
			return false
		}
	}
	if len(allow) == 0 {
		return true
	}
	for _, value := range values {
		if matchesAny(value, allow) {
			return true
		}
	}
	return false
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
