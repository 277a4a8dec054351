package vectorstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	historyPrefix  = "history_"
	scrollPageSize = 256
)

var unsafeCollectionChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// QdrantConfig addresses the gRPC port of a Qdrant server.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	Dimension  int
}

// qdrantStore shares one collection for document chunks and gives every tenant
// its own history collection.
type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
}

func NewQdrant(ctx context.Context, cfg QdrantConfig) (Store, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant vector dimension must be positive")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant failed: %w", err)
	}

	s := &qdrantStore{client: client, collection: cfg.Collection, dimension: uint64(cfg.Dimension)}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.ensureCollection(checkCtx, s.collection); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// historyCollection names the history collection of a tenant. The hash suffix
// keeps tenants apart whose names sanitise to the same string.
func historyCollection(tenant string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tenant))
	return fmt.Sprintf("%s%s_%016x", historyPrefix, unsafeCollectionChars.ReplaceAllString(tenant, "_"), h.Sum64())
}

func tenantFilter(tenant string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("tenant", tenant)},
	}
}

func (s *qdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("list collections failed: %w", err)
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *qdrantStore) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.collectionExists(ctx, name)
	if err != nil || exists {
		return err
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s failed: %w", name, err)
	}
	return nil
}

func visibleFilter(tenant string) *qdrant.Filter {
	return &qdrant.Filter{
		Should: []*qdrant.Condition{
			qdrant.NewMatch("tenant", tenant),
			qdrant.NewMatchBool("is_public", true),
		},
	}
}

func (s *qdrantStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		if c.Tenant == "" {
			return ErrTenantRequired
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": int64(c.DocumentID),
				"source":      c.Source,
				"tenant":      c.Tenant,
				"is_public":   c.IsPublic,
				"content":     c.Content,
			}),
		}
	}
	wait := true
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upsert chunks failed: %w", err)
	}
	return nil
}

func (s *qdrantStore) SearchChunks(ctx context.Context, tenant string, query []float32, k int) ([]Match, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		Filter:         visibleFilter(tenant),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query chunks failed: %w", err)
	}
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{
			Chunk:      chunkFromPayload(h.GetId().GetUuid(), h.GetPayload()),
			Similarity: float64(h.GetScore()),
		})
	}
	return matches, nil
}

func chunkFromPayload(id string, p map[string]*qdrant.Value) Chunk {
	return Chunk{
		ID:         id,
		DocumentID: uint(p["document_id"].GetIntegerValue()),
		Source:     p["source"].GetStringValue(),
		Tenant:     p["tenant"].GetStringValue(),
		IsPublic:   p["is_public"].GetBoolValue(),
		Content:    p["content"].GetStringValue(),
	}
}

func (s *qdrantStore) ListSources(ctx context.Context, tenant string) ([]SourceInfo, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	return s.listSources(ctx, visibleFilter(tenant))
}

func (s *qdrantStore) ListAllSources(ctx context.Context) ([]SourceInfo, error) {
	return s.listSources(ctx, nil)
}

func (s *qdrantStore) listSources(ctx context.Context, filter *qdrant.Filter) ([]SourceInfo, error) {
	points, err := s.scrollAll(ctx, s.collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]SourceInfo, 0, len(points))
	for _, p := range points {
		c := chunkFromPayload("", p.GetPayload())
		out = append(out, SourceInfo{Source: c.Source, Tenant: c.Tenant, IsPublic: c.IsPublic})
	}
	return dedupeSources(out), nil
}

// scrollAll pages through a collection.
func (s *qdrantStore) scrollAll(ctx context.Context, collection string, filter *qdrant.Filter) ([]*qdrant.RetrievedPoint, error) {
	var (
		all    []*qdrant.RetrievedPoint
		offset *qdrant.PointId
	)
	for {
		limit := uint32(scrollPageSize)
		page, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll %s failed: %w", collection, err)
		}
		page, more := trimPage(page, offset)
		all = append(all, page...)
		if !more {
			return all, nil
		}
		offset = page[len(page)-1].GetId()
	}
}

// trimPage drops the offset point a scroll page starts with, since scroll
// offsets are inclusive, and reports whether another page may follow.
func trimPage(page []*qdrant.RetrievedPoint, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, bool) {
	full := len(page) == scrollPageSize
	if offset != nil && len(page) > 0 && samePoint(page[0].GetId(), offset) {
		page = page[1:]
	}
	return page, full && len(page) > 0
}

func samePoint(a, b *qdrant.PointId) bool {
	return a.GetUuid() == b.GetUuid() && a.GetNum() == b.GetNum()
}

func (s *qdrantStore) DeleteChunks(ctx context.Context, filter ChunkFilter) error {
	if filter.empty() {
		return ErrEmptyFilter
	}
	var must []*qdrant.Condition
	if filter.DocumentID != 0 {
		must = append(must, qdrant.NewMatchInt("document_id", int64(filter.DocumentID)))
	}
	if filter.Source != "" {
		must = append(must, qdrant.NewMatch("source", filter.Source))
	}
	if filter.Tenant != "" {
		must = append(must, qdrant.NewMatch("tenant", filter.Tenant))
	}
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{Must: must},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	return nil
}

func (s *qdrantStore) DeleteAllChunks(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("drop collection %s failed: %w", s.collection, err)
	}
	return s.ensureCollection(ctx, s.collection)
}

func (s *qdrantStore) AddTurn(ctx context.Context, turn Turn, limit int) error {
	if turn.Tenant == "" {
		return ErrTenantRequired
	}
	name := historyCollection(turn.Tenant)
	if err := s.ensureCollection(ctx, name); err != nil {
		return err
	}

	if limit > 0 {
		existing, err := s.orderedTurns(ctx, name, turn.Tenant)
		if err != nil {
			return err
		}
		if ids := evictionIDs(existing, limit); len(ids) > 0 {
			wait := true
			if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
				CollectionName: name,
				Wait:           &wait,
				Points: &qdrant.PointsSelector{
					PointsSelectorOneOf: &qdrant.PointsSelector_Points{
						Points: &qdrant.PointsIdsList{Ids: ids},
					},
				},
			}); err != nil {
				return fmt.Errorf("evict turns failed: %w", err)
			}
		}
	}

	id := turn.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(turn.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"tenant":  turn.Tenant,
				"content": turn.Content,
				"seq":     now.UnixNano(),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert turn failed: %w", err)
	}
	return nil
}

// evictionIDs picks the oldest turns to drop so that at most limit turns remain
// once one more is added. ordered is oldest first.
func evictionIDs(ordered []*qdrant.RetrievedPoint, limit int) []*qdrant.PointId {
	if limit <= 0 {
		return nil
	}
	excess := len(ordered) - (limit - 1)
	if excess <= 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, excess)
	for _, p := range ordered[:excess] {
		ids = append(ids, p.GetId())
	}
	return ids
}

// orderedTurns returns the tenant's points of a history collection by insertion order.
func (s *qdrantStore) orderedTurns(ctx context.Context, name, tenant string) ([]*qdrant.RetrievedPoint, error) {
	points, err := s.scrollAll(ctx, name, tenantFilter(tenant))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].GetPayload()["seq"].GetIntegerValue() < points[j].GetPayload()["seq"].GetIntegerValue()
	})
	return points, nil
}

func turnFromPayload(id string, p map[string]*qdrant.Value) Turn {
	return Turn{
		ID:        id,
		Tenant:    p["tenant"].GetStringValue(),
		Content:   p["content"].GetStringValue(),
		CreatedAt: time.Unix(0, p["seq"].GetIntegerValue()),
	}
}

func (s *qdrantStore) SearchTurns(ctx context.Context, tenant string, query []float32, k int) ([]Turn, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	name := historyCollection(tenant)
	exists, err := s.collectionExists(ctx, name)
	if err != nil || !exists {
		return nil, err
	}
	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		Filter:         tenantFilter(tenant),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query turns failed: %w", err)
	}
	turns := make([]Turn, 0, len(hits))
	for _, h := range hits {
		t := turnFromPayload(h.GetId().GetUuid(), h.GetPayload())
		t.Similarity = float64(h.GetScore())
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *qdrantStore) ListTurns(ctx context.Context, tenant string) ([]Turn, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	name := historyCollection(tenant)
	exists, err := s.collectionExists(ctx, name)
	if err != nil || !exists {
		return nil, err
	}
	points, err := s.orderedTurns(ctx, name, tenant)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, len(points))
	for i, p := range points {
		turns[i] = turnFromPayload(p.GetId().GetUuid(), p.GetPayload())
	}
	return turns, nil
}

func (s *qdrantStore) DeleteTurns(ctx context.Context, tenant string) error {
	if tenant == "" {
		return ErrTenantRequired
	}
	name := historyCollection(tenant)
	exists, err := s.collectionExists(ctx, name)
	if err != nil || !exists {
		return err
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("drop collection %s failed: %w", name, err)
	}
	return nil
}

func (s *qdrantStore) DeleteAllTurns(ctx context.Context) error {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections failed: %w", err)
	}
	for _, n := range names {
		if !strings.HasPrefix(n, historyPrefix) {
			continue
		}
		if err := s.client.DeleteCollection(ctx, n); err != nil {
			return fmt.Errorf("drop collection %s failed: %w", n, err)
		}
	}
	return nil
}

func (s *qdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

func (s *qdrantStore) Close() error {
	return s.client.Close()
}
