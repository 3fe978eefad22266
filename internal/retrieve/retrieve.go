// Package retrieve implements the hybrid retriever (spec component C8)
// and its query-relaxation wrapper (spec component C9), grounded on the
// teacher's internal/search/engine.go dual-pass structure (run a lexical
// pass and a vector pass concurrently, then fuse). The fusion math is
// deliberately different: the teacher fuses with Reciprocal Rank Fusion
// across normalized scores, but this domain's spec calls for a simpler,
// precedence-ordered merge where keyword hits are the trust anchor
// against name-confusion hallucinations and always precede vector hits.
package retrieve

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dzheng/digitalmemory/internal/datefilter"
	"github.com/dzheng/digitalmemory/internal/embed"
	"github.com/dzheng/digitalmemory/internal/store"
)

// Hit is one retrieval result (spec section 4.8).
type Hit struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Date     string  `json:"date"`
	Content  string  `json:"content"`
	Distance float32 `json:"distance"`
	Origin   string  `json:"origin"` // "keyword" or "vector"
}

const (
	OriginKeyword = "keyword"
	OriginVector  = "vector"
)

// NoRecordSentinel is the synthetic envelope returned when both the
// dated and relaxed passes come back empty (spec section 4.8, step 7).
// The agent (C10) is instructed never to contradict it.
const NoRecordSentinel = "No matching record was found in the journal for this query."

// preciseEntityThreshold and shortQueryThreshold are the query-shape
// cutoffs from spec section 4.8, step 2.
const (
	preciseEntityThreshold = 15
	shortQueryThreshold    = 20
)

// genericQueryTokens are query tokens treated as too generic to anchor
// the post-retrieval cleanse, per spec section 4.8 step 5's "configured
// small set" of tokens like 记录/内容/最近/什么.
var genericQueryTokens = map[string]bool{
	"记录": true,
	"内容": true,
	"最近": true,
	"什么": true,
	"今天": true,
	"昨天": true,
}

// Retriever answers search(query, date_filter, k) against a published
// index+metadata snapshot (spec component C8).
type Retriever struct {
	Handle   *store.Handle
	Embedder embed.Embedder
	Logger   *slog.Logger

	// Clock supplies "now" for date-filter parsing. Tests set this to a
	// fixed time; production leaves it nil and gets time.Now.
	Clock func() time.Time
}

func New(handle *store.Handle, embedder embed.Embedder, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{Handle: handle, Embedder: embedder, Logger: logger}
}

func (r *Retriever) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// Envelope renders hits as the textual observation the agent (C10)
// grounds its answer in, substituting the no-record sentinel when hits
// is empty. Kept separate from Search's []Hit return so callers that
// want structured results (the HTTP retrieve endpoint) aren't forced
// through text.
func Envelope(hits []Hit) string {
	if len(hits) == 0 {
		return NoRecordSentinel
	}
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		date := h.Date
		if date == "" {
			date = "unknown date"
		}
		b.WriteString("[" + date + "] " + h.Content)
	}
	return b.String()
}

// Search implements C8's algorithm end to end, including the C9
// relaxation fallback on an empty dated result (step 7).
func (r *Retriever) Search(ctx context.Context, query, dateFilter string, k int) ([]Hit, error) {
	hits, err := r.search(ctx, query, dateFilter, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && dateFilter != "" {
		r.Logger.Info("retrieval empty with date filter, relaxing once",
			slog.String("query", query), slog.String("date_filter", dateFilter))
		relaxed, err := r.search(ctx, query, "", k)
		if err != nil {
			return nil, err
		}
		hits = relaxed
	}
	return hits, nil
}

// search runs one pass (keyword + vector) without relaxation; this is
// the body both the top-level call and the C9 retry invoke, and the
// relaxation retry must never itself call Search (which would recurse).
func (r *Retriever) search(ctx context.Context, query, dateFilter string, k int) ([]Hit, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || k <= 0 {
		return nil, nil
	}

	rng, err := datefilter.Parse(dateFilter, r.now())
	if err != nil {
		r.Logger.Warn("date filter parse failed, proceeding without filter",
			slog.String("filter", dateFilter), slog.String("error", err.Error()))
		rng = nil
	}

	preciseEntity := len([]rune(trimmed)) < preciseEntityThreshold
	short := len([]rune(trimmed)) < shortQueryThreshold

	snap := r.Handle.Load()

	var keywordHits, vectorHits []Hit
	g, gctx := errgroup.WithContext(ctx)

	if short {
		g.Go(func() error {
			keywordHits = keywordPass(snap.Metadata, trimmed, rng)
			return nil
		})
	}

	g.Go(func() error {
		hits, err := r.vectorPass(gctx, snap, trimmed, dateFilter, rng, k)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if preciseEntity {
		vectorHits = cleanse(trimmed, vectorHits)
	}

	return mergeDedupe(keywordHits, vectorHits, k), nil
}

func keywordPass(metadata []store.SubChunk, query string, rng *datefilter.Range) []Hit {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil
	}

	var hits []Hit
	for _, sc := range metadata {
		if rng != nil && !rng.Contains(sc.Date) {
			continue
		}
		lower := strings.ToLower(sc.Content)
		matched := true
		for _, tok := range tokens {
			if !strings.Contains(lower, tok) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		hits = append(hits, Hit{
			ID: sc.ID, Source: sc.Source, Date: sc.Date, Content: sc.Content,
			Distance: 0.0, Origin: OriginKeyword,
		})
	}
	return hits
}

func (r *Retriever) vectorPass(ctx context.Context, snap *store.Snapshot, query, rawFilter string, rng *datefilter.Range, k int) ([]Hit, error) {
	ntotal := snap.Index.NTotal()
	if ntotal == 0 {
		return nil, nil
	}

	vecK := adaptedK(rawFilter, k, ntotal)

	queryVec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := snap.Index.Search(queryVec, vecK)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, res := range results {
		if res.Position < 0 || res.Position >= len(snap.Metadata) {
			continue
		}
		sc := snap.Metadata[res.Position]
		if rng != nil && !rng.Contains(sc.Date) {
			continue
		}
		hits = append(hits, Hit{
			ID: sc.ID, Source: sc.Source, Date: sc.Date, Content: sc.Content,
			Distance: res.Distance, Origin: OriginVector,
		})
	}
	return hits, nil
}

// adaptedK implements spec section 4.8 step 4's K-adaptation table.
func adaptedK(rawFilter string, k, ntotal int) int {
	var vecK int
	switch datefilter.ClassifyKind(rawFilter) {
	case datefilter.KindNone:
		vecK = k
	case datefilter.KindDay:
		vecK = k * 200
	case datefilter.KindDekad:
		vecK = k * 100
	default:
		vecK = k * 50
	}
	if vecK > ntotal {
		vecK = ntotal
	}
	return vecK
}

// cleanse applies the post-retrieval cleanse for precise-entity queries
// (spec section 4.8 step 5). User-authored (voice) records and generic
// queries bypass the strict core-token check.
func cleanse(query string, hits []Hit) []Hit {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return hits
	}

	coreToken := tokens[0]
	for _, t := range tokens {
		if len([]rune(t)) > len([]rune(coreToken)) {
			coreToken = t
		}
	}
	coreTokenLower := strings.ToLower(coreToken)

	isGeneric := len([]rune(query)) <= 6
	for _, t := range tokens {
		if genericQueryTokens[t] {
			isGeneric = true
			break
		}
	}

	var out []Hit
	for _, h := range hits {
		lower := strings.ToLower(h.Content)
		userAuthored := h.Source == "voice" || strings.HasPrefix(h.ID, "voice_")

		switch {
		case userAuthored && isGeneric:
			out = append(out, h)
		case strings.Contains(lower, coreTokenLower):
			out = append(out, h)
		case userAuthored && anyTokenLongerThanOne(tokens, lower):
			out = append(out, h)
		}
	}
	return out
}

func anyTokenLongerThanOne(tokens []string, lowerContent string) bool {
	for _, t := range tokens {
		if len([]rune(t)) > 1 && strings.Contains(lowerContent, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// mergeDedupe combines keyword and vector hits: keyword hits first
// (preserving their order), then vector hits (already ascending
// distance), deduping by ID and truncating to k (spec section 4.8 step 6).
func mergeDedupe(keywordHits, vectorHits []Hit, k int) []Hit {
	sort.SliceStable(vectorHits, func(i, j int) bool {
		return vectorHits[i].Distance < vectorHits[j].Distance
	})

	seen := make(map[string]bool, len(keywordHits)+len(vectorHits))
	out := make([]Hit, 0, k)

	for _, h := range keywordHits {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
		if len(out) == k {
			return out
		}
	}
	for _, h := range vectorHits {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
		if len(out) == k {
			return out
		}
	}
	return out
}
