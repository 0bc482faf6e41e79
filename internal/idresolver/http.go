package idresolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bte-graphql/internal/logging"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxResolverResponseBytes = 32 << 20

// HTTPConfig configures the node-normalizer client.
type HTTPConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	CacheSize  int
	Client     *http.Client
}

// HTTPResolver resolves ids against a node-normalizer style endpoint
// (POST {base}/get_normalized_nodes). Resolved records are cached.
type HTTPResolver struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	cache      *lru.Cache
}

// NewHTTPResolver builds a resolver. A CacheSize <= 0 disables caching.
func NewHTTPResolver(cfg HTTPConfig) (*HTTPResolver, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("resolver base URL is required")
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	r := &HTTPResolver{baseURL: base, client: client, maxRetries: cfg.MaxRetries}
	if cfg.CacheSize > 0 {
		cache, err := lru.New(cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create resolver cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// CloseIdleConnections closes kept-alive connections to the resolver service.
func (r *HTTPResolver) CloseIdleConnections() {
	r.client.CloseIdleConnections()
}

func cacheKey(semanticType, id string) string {
	return semanticType + "|" + id
}

// Resolve returns a record for every requested id. Ids unknown to the service
// come back with StatusFailed.
func (r *HTTPResolver) Resolve(ctx context.Context, semanticType string, ids []string) (map[string]Record, error) {
	out := make(map[string]Record, len(ids))
	pending := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if r.cache != nil {
			if cached, ok := r.cache.Get(cacheKey(semanticType, id)); ok {
				out[id] = cached.(Record)
				continue
			}
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return out, nil
	}

	ctx, span := otel.Tracer("bte-graphql/idresolver").Start(ctx, "idresolver.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("bte.semantic_type", semanticType),
		attribute.Int("bte.id_count", len(pending)),
		attribute.Int("bte.cached_count", len(out)),
	)

	body, err := r.fetch(ctx, pending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	parsed := parseNormalizedNodes(body)
	for _, id := range pending {
		rec, ok := parsed[id]
		if !ok {
			out[id] = Record{ID: id, Status: StatusFailed}
			continue
		}
		rec.ID = id
		out[id] = rec
		if r.cache != nil {
			r.cache.Add(cacheKey(semanticType, id), rec)
		}
	}

	logging.FromContext(ctx).Debug("identifiers resolved",
		slog.String("type", semanticType),
		slog.Int("requested", len(pending)),
		slog.Int("resolved", len(parsed)),
	)
	return out, nil
}

type normalizeRequest struct {
	Curies   []string `json:"curies"`
	Conflate bool     `json:"conflate"`
}

func (r *HTTPResolver) fetch(ctx context.Context, ids []string) ([]byte, error) {
	payload, err := json.Marshal(normalizeRequest{Curies: ids, Conflate: true})
	if err != nil {
		return nil, fmt.Errorf("encode resolver request: %w", err)
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/get_normalized_nodes", bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResolverResponseBytes))
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("resolver returned status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return nil, backoff.Permanent(fmt.Errorf("resolver returned status %d", resp.StatusCode))
		}
		return data, nil
	}

	tries := r.maxRetries + 1
	if tries < 1 {
		tries = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(tries)),
	)
}

// parseNormalizedNodes reads a node-normalizer response. Keys mapping to null
// are left out so callers treat them as failed.
func parseNormalizedNodes(body []byte) map[string]Record {
	records := make(map[string]Record)
	gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		requested := key.String()
		primary := value.Get("id.identifier").String()
		label := value.Get("id.label").String()

		var equivalents []string
		seen := make(map[string]struct{})
		add := func(id string) {
			if id == "" {
				return
			}
			if _, ok := seen[id]; ok {
				return
			}
			seen[id] = struct{}{}
			equivalents = append(equivalents, id)
		}
		add(primary)
		value.Get("equivalent_identifiers").ForEach(func(_, eq gjson.Result) bool {
			add(eq.Get("identifier").String())
			if label == "" {
				label = eq.Get("label").String()
			}
			return true
		})
		add(requested)

		if primary == "" {
			primary = requested
		}
		records[requested] = Record{
			ID:                    requested,
			PrimaryID:             primary,
			Status:                StatusResolved,
			NamespaceIDs:          GroupByNamespace(equivalents),
			EquivalentIdentifiers: equivalents,
			Label:                 label,
		}
		return true
	})
	return records
}
