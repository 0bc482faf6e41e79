package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bte-graphql/internal/metakg"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const inputsPlaceholder = "{inputs}"

// errNoContent marks provider responses meaning "nothing found".
var errNoContent = errors.New("no content")

// wireID is what gets sent to the provider for a dispatched id.
func wireID(q metakg.QuerySpec, id string) string {
	if !q.StripPrefix {
		return id
	}
	if idx := strings.Index(id, ":"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// buildRequest fills the query template with the call's ids. It returns the
// request and a map from wire value back to dispatched id.
func buildRequest(ctx context.Context, q metakg.QuerySpec, inputs []string) (*http.Request, map[string]string, error) {
	wire := make([]string, len(inputs))
	back := make(map[string]string, len(inputs)*2)
	for i, id := range inputs {
		wire[i] = wireID(q, id)
		back[wire[i]] = id
		back[id] = id
	}
	joined := strings.Join(wire, q.Separator())

	target, err := url.Parse(strings.TrimRight(q.Server, "/") + strings.ReplaceAll(q.Path, inputsPlaceholder, url.PathEscape(joined)))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid provider url: %w", err)
	}
	if len(q.Params) > 0 {
		values := target.Query()
		for key, value := range q.Params {
			values.Set(key, strings.ReplaceAll(value, inputsPlaceholder, joined))
		}
		target.RawQuery = values.Encode()
	}

	var body io.Reader
	contentType := ""
	if q.HTTPMethod() == http.MethodPost && q.Body != "" {
		filled := strings.ReplaceAll(q.Body, inputsPlaceholder, joined)
		body = strings.NewReader(filled)
		contentType = "application/x-www-form-urlencoded"
		if strings.HasPrefix(strings.TrimSpace(filled), "{") {
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, q.HTTPMethod(), target.String(), body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, back, nil
}

// do runs one call with rate limiting, a timeout and retries, then maps the
// response.
func (e *HTTPExecutor) do(ctx context.Context, op metakg.Operation, c call) ([]ApiResult, error) {
	ctx, span := otel.Tracer("bte-graphql/engine").Start(ctx, "engine.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("bte.api", op.Association.APIName),
		attribute.String("bte.predicate", op.Association.Predicate),
		attribute.Int("bte.input_count", len(c.inputs)),
	)

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	if err := e.limiter(op.Association.APIName).Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var back map[string]string
	operation := func() ([]byte, error) {
		req, wire, err := buildRequest(ctx, op.Query, c.inputs)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		back = wire

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		data, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxResponseBytes))
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
			return nil, backoff.Permanent(errNoContent)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return nil, backoff.Permanent(fmt.Errorf("provider returned status %d", resp.StatusCode))
		}
		return data, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	tries := e.cfg.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(tries)),
	)
	if errors.Is(err, errNoContent) {
		span.SetAttributes(attribute.Int("bte.result_count", 0))
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := mapResponse(op, data, c.inputs, back)
	span.SetAttributes(attribute.Int("bte.result_count", len(results)))
	return results, nil
}
