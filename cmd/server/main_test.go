package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"bte-graphql/internal/config"
	"bte-graphql/internal/metakg"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	catalogErr := fmt.Errorf("failed to load operation catalog: %w",
		&metakg.ConfigurationError{Source: "catalog.yaml", Problems: []string{"operation 0: missing api_name"}})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"catalog error", catalogErr, exitConfiguration},
		{"validation error", errInvalidConfiguration, exitConfiguration},
		{"runtime error", errors.New("server failed: address in use"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestReportValidation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ok := &config.ValidationResult{Warnings: []config.ValidationWarning{{Field: "resolver.cache_size", Message: "cache disabled"}}}
	assert.NoError(t, reportValidation(ok, logger))
	assert.Contains(t, buf.String(), "resolver.cache_size")

	buf.Reset()
	bad := &config.ValidationResult{Errors: []config.ValidationError{{Field: "catalog.path", Message: "is required"}}}
	assert.ErrorIs(t, reportValidation(bad, logger), errInvalidConfiguration)
	assert.Contains(t, buf.String(), "catalog.path")
}
