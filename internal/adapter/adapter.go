// Package adapter turns upstream endpoints into a fingerprint plus
// normalized postings. One adapter exists per source shape; dispatch happens
// through a closed registry built at startup so an unknown kind fails the
// target instead of silently matching a string.
package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/crawler"
)

// Result is what one poll of a target yields. When Fingerprint equals the
// target's stored fingerprint the adapter skips mapping and Postings is
// empty; the orchestrator records only a checked timestamp. ItemErrors
// counts non-fatal per-item failures encountered while mapping.
type Result struct {
	Fingerprint string
	Postings    []crawler.NormalizedPosting
	ItemErrors  int
}

// Adapter polls a target and yields its current listing state. A returned
// error is terminal for the target in this pass.
type Adapter interface {
	Poll(ctx context.Context, target crawler.CrawlTarget) (Result, error)
}

// Registry maps adapter kinds to implementations.
type Registry struct {
	adapters map[crawler.AdapterKind]Adapter
}

// NewRegistry builds the default registry over all supported source kinds.
func NewRegistry(fetcher crawler.Fetcher, logger *zap.Logger) *Registry {
	r := &Registry{adapters: make(map[crawler.AdapterKind]Adapter)}
	r.Register(crawler.KindHTML, NewHTML(fetcher, logger))
	r.Register(crawler.KindTossAPI, NewToss(fetcher, logger))
	r.Register(crawler.KindDaangnAPI, NewDaangn(fetcher, logger))
	r.Register(crawler.KindKakaoAPI, NewKakao(fetcher, logger))
	return r
}

// Register adds or replaces the adapter for a kind.
func (r *Registry) Register(kind crawler.AdapterKind, a Adapter) {
	r.adapters[kind] = a
}

// Lookup resolves the adapter for a kind.
func (r *Registry) Lookup(kind crawler.AdapterKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// metaEntry is one element of the greenhouse-style metadata list some
// vendors attach to a job.
type metaEntry struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// metaMap flattens a metadata list into name→value, keeping only string
// values since that is all the content projections consume.
func metaMap(entries []metaEntry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if v, ok := e.Value.(string); ok {
			out[e.Name] = v
		}
	}
	return out
}

// stringify renders a JSON scalar as the string used in fingerprints and
// URLs. Vendor identity fields arrive as either strings or numbers.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		// Greenhouse ids are integral; avoid the exponent form.
		return strconv.FormatInt(int64(t), 10)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
