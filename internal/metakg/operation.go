// Package metakg holds the operation catalog: the typed list of cross-API query
// operations the GraphQL schema and the edge resolvers are derived from.
package metakg

import "strings"

// Association describes what an operation connects.
type Association struct {
	InputType         string `yaml:"input_type"`
	OutputType        string `yaml:"output_type"`
	Predicate         string `yaml:"predicate"`
	APIName           string `yaml:"api_name"`
	InputIDNamespace  string `yaml:"input_id"`
	OutputIDNamespace string `yaml:"output_id"`
	Source            string `yaml:"source"`
}

// QuerySpec is the request template for calling the provider.
// The literal "{inputs}" in Path, Params or Body is replaced by the dispatched ids.
type QuerySpec struct {
	Server         string            `yaml:"server"`
	Path           string            `yaml:"path"`
	Method         string            `yaml:"method"`
	Params         map[string]string `yaml:"params"`
	Body           string            `yaml:"body"`
	InputSeparator string            `yaml:"input_separator"`
	StripPrefix    bool              `yaml:"strip_prefix"`
}

// ResponseMapping holds gjson paths used to pull results out of a provider response.
type ResponseMapping struct {
	Hits       string `yaml:"hits"`
	Input      string `yaml:"input"`
	OutputID   string `yaml:"output_id"`
	Name       string `yaml:"name"`
	PubMed     string `yaml:"pubmed"`
	PMC        string `yaml:"pmc"`
	NGDOverall string `yaml:"ngd_overall"`
	NGDStarred string `yaml:"ngd_starred"`
}

// Operation is one catalog entry. Operations are immutable once loaded.
type Operation struct {
	Association   Association     `yaml:"association"`
	SupportsBatch bool            `yaml:"supports_batch"`
	BatchSize     int             `yaml:"batch_size"`
	Query         QuerySpec       `yaml:"query"`
	Response      ResponseMapping `yaml:"response"`
}

// Key identifies an operation for logs and metrics.
func (op Operation) Key() string {
	return op.Association.APIName + "|" + op.Association.InputType + "->" + op.Association.OutputType + "|" + op.Association.Predicate
}

// Separator returns the separator used to join batched ids on the wire.
func (q QuerySpec) Separator() string {
	if q.InputSeparator == "" {
		return ","
	}
	return q.InputSeparator
}

// HTTPMethod returns the upper-cased request method, defaulting to GET.
func (q QuerySpec) HTTPMethod() string {
	if strings.TrimSpace(q.Method) == "" {
		return "GET"
	}
	return strings.ToUpper(strings.TrimSpace(q.Method))
}

func (a Association) missingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("input_type", a.InputType)
	check("output_type", a.OutputType)
	check("predicate", a.Predicate)
	check("api_name", a.APIName)
	check("input_id", a.InputIDNamespace)
	return missing
}
