package metakg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Operations []Operation `yaml:"operations"`
}

// LoadFile reads a YAML or JSON catalog from disk.
func LoadFile(path string) ([]Operation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Problems: []string{err.Error()}}
	}
	defer func() {
		_ = f.Close()
	}()

	ops, err := Decode(f)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.Source = path
			return nil, cfgErr
		}
		return nil, &ConfigurationError{Source: path, Problems: []string{err.Error()}}
	}
	return ops, nil
}

// Decode parses a catalog document and checks that every operation can be
// called: association fields, a server and an output id path are required.
// A batch operation also needs response.input so each hit can be traced back
// to the id that produced it.
// JSON documents decode through the same path since YAML is a superset.
func Decode(r io.Reader) ([]Operation, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc catalogFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	var problems []string
	for i, op := range doc.Operations {
		if missing := op.Association.missingFields(); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("operation %d: missing %s", i, strings.Join(missing, ", ")))
			continue
		}
		if strings.TrimSpace(op.Query.Server) == "" {
			problems = append(problems, fmt.Sprintf("operation %d (%s): missing query.server", i, op.Key()))
		}
		if strings.TrimSpace(op.Response.OutputID) == "" {
			problems = append(problems, fmt.Sprintf("operation %d (%s): missing response.output_id", i, op.Key()))
		}
		if op.SupportsBatch && strings.TrimSpace(op.Response.Input) == "" {
			problems = append(problems, fmt.Sprintf("operation %d (%s): supports_batch requires response.input", i, op.Key()))
		}
		switch op.Query.HTTPMethod() {
		case "GET", "POST":
		default:
			problems = append(problems, fmt.Sprintf("operation %d (%s): unsupported method %q", i, op.Key(), op.Query.Method))
		}
	}
	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return doc.Operations, nil
}
