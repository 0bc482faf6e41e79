// Package gqlrequest decodes and analyzes incoming GraphQL requests once so
// that logging, metrics and tracing middleware share the same view of them.
package gqlrequest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Envelope is the transport-level shape of a GraphQL request.
type Envelope struct {
	Method        string
	Query         string
	OperationName string
	Variables     map[string]interface{}

	DocumentSizeBytes int
}

type jsonEnvelope struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// DecodeEnvelope reads the request payload and rewinds the body so the
// GraphQL handler can read it again. GET reads the query string; POST accepts
// application/json and application/graphql.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("request is nil")
	}
	env := Envelope{Method: r.Method}

	switch r.Method {
	case http.MethodGet:
		values := r.URL.Query()
		env.Query = values.Get("query")
		env.OperationName = values.Get("operationName")
		if raw := values.Get("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &env.Variables); err != nil {
				return env, fmt.Errorf("decode variables: %w", err)
			}
		}
	case http.MethodPost:
		if r.Body == nil {
			return env, nil
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return env, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			mediaType = strings.TrimSpace(r.Header.Get("Content-Type"))
		}
		if mediaType == "application/graphql" {
			env.Query = string(body)
			break
		}
		if len(bytes.TrimSpace(body)) == 0 {
			break
		}
		var payload jsonEnvelope
		if err := json.Unmarshal(body, &payload); err != nil {
			return env, fmt.Errorf("decode request body: %w", err)
		}
		env.Query = payload.Query
		env.OperationName = payload.OperationName
		env.Variables = payload.Variables
	}

	env.DocumentSizeBytes = len(env.Query)
	return env, nil
}
