package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

var (
	ErrTenantRequired = errors.New("tenant is required")
	ErrEmptyFilter    = errors.New("chunk filter matches everything")
)

// Chunk is one embedded text fragment. Tenant is the namespace the chunk was
// ingested for; public chunks are readable by every tenant.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID uint      `json:"document_id"`
	Source     string    `json:"source"`
	Tenant     string    `json:"tenant"`
	IsPublic   bool      `json:"is_public"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

type Match struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// Turn is one remembered chat exchange of a tenant.
type Turn struct {
	ID         string    `json:"id"`
	Tenant     string    `json:"tenant"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	Similarity float64   `json:"similarity,omitempty"`
}

type SourceInfo struct {
	Source   string `json:"source"`
	Tenant   string `json:"ingested_by"`
	IsPublic bool   `json:"is_public"`
}

// ChunkFilter selects chunks for deletion. Zero fields are ignored; at least one must be set.
type ChunkFilter struct {
	DocumentID uint
	Source     string
	Tenant     string
}

func (f ChunkFilter) empty() bool {
	return f.DocumentID == 0 && f.Source == "" && f.Tenant == ""
}

// Store persists document chunks and chat turns. Every read path takes the
// caller's tenant and only returns rows owned by that tenant or marked public.
type Store interface {
	AddChunks(ctx context.Context, chunks []Chunk) error
	SearchChunks(ctx context.Context, tenant string, query []float32, k int) ([]Match, error)
	ListSources(ctx context.Context, tenant string) ([]SourceInfo, error)
	ListAllSources(ctx context.Context) ([]SourceInfo, error)
	DeleteChunks(ctx context.Context, filter ChunkFilter) error
	DeleteAllChunks(ctx context.Context) error

	// AddTurn stores a turn, first evicting the oldest so at most limit remain afterwards.
	AddTurn(ctx context.Context, turn Turn, limit int) error
	SearchTurns(ctx context.Context, tenant string, query []float32, k int) ([]Turn, error)
	// ListTurns returns the tenant's turns oldest first.
	ListTurns(ctx context.Context, tenant string) ([]Turn, error)
	DeleteTurns(ctx context.Context, tenant string) error
	DeleteAllTurns(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func topMatches(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func topTurns(turns []Turn, k int) []Turn {
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Similarity > turns[j].Similarity })
	if k >= 0 && len(turns) > k {
		turns = turns[:k]
	}
	return turns
}

func dedupeSources(in []SourceInfo) []SourceInfo {
	seen := make(map[SourceInfo]struct{}, len(in))
	out := make([]SourceInfo, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Tenant < out[j].Tenant
	})
	return out
}
