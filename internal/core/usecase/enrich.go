package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
)

const (
	defaultParentFetchTimeout = 5 * time.Second
	statisticalMarker         = "\n[Contains statistical analysis]"
)

// ContextEnricher attaches hierarchical context to each result according to
// its chunk level. Parent lookups run on a shared worker pool.
type ContextEnricher struct {
	index        ports.ChunkIndex
	pool         *ants.Pool
	fetchTimeout time.Duration
	logger       *slog.Logger
}

func NewContextEnricher(index ports.ChunkIndex, pool *ants.Pool, fetchTimeout time.Duration, logger *slog.Logger) *ContextEnricher {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultParentFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextEnricher{
		index:        index,
		pool:         pool,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

func (e *ContextEnricher) Enrich(ctx context.Context, scored []domain.ScoredResult) []domain.EnrichedResult {
	parents := e.fetchParents(ctx, scored)

	out := make([]domain.EnrichedResult, 0, len(scored))
	for _, r := range scored {
		var content string
		switch r.Level {
		case domain.LevelParagraph:
			content = enrichParagraph(r.Content, parents[r.ParentChunkID])
		case domain.LevelSubsection:
			content = enrichSubsection(r.SectionName, r.SubsectionName, r.Content)
		default:
			content = r.Content
		}
		out = append(out, domain.EnrichedResult{
			ScoredResult:    r,
			EnrichedContent: content,
			Relevance:       r.RelevanceScore(),
		})
	}
	return out
}

// fetchParents loads each distinct parent of a paragraph result once.
// Failed lookups are logged and simply absent from the map.
func (e *ContextEnricher) fetchParents(ctx context.Context, scored []domain.ScoredResult) map[string]*domain.Chunk {
	ids := make([]string, 0, len(scored))
	seen := make(map[string]struct{})
	for _, r := range scored {
		if r.Level != domain.LevelParagraph || r.ParentChunkID == "" {
			continue
		}
		if _, dup := seen[r.ParentChunkID]; dup {
			continue
		}
		seen[r.ParentChunkID] = struct{}{}
		ids = append(ids, r.ParentChunkID)
	}

	parents := make(map[string]*domain.Chunk, len(ids))
	if len(ids) == 0 || e.index == nil {
		return parents
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range ids {
		task := func() {
			defer wg.Done()
			parent, err := e.fetchParent(ctx, id)
			if err != nil {
				e.logger.Warn("parent_chunk_fetch_failed", "parent_chunk_id", id, "error", err)
				return
			}
			mu.Lock()
			parents[id] = parent
			mu.Unlock()
		}

		wg.Add(1)
		if e.pool == nil {
			task()
			continue
		}
		if err := e.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	return parents
}

// fetchParent ignores ctx cancellation; fetchTimeout alone bounds it, so
// results that survived the request deadline are still enriched.
func (e *ContextEnricher) fetchParent(ctx context.Context, id string) (*domain.Chunk, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.fetchTimeout)
	defer cancel()
	return e.index.FetchByID(fetchCtx, id)
}

func enrichParagraph(content string, parent *domain.Chunk) string {
	if parent == nil {
		return content
	}
	parts := make([]string, 0, 3)
	if parent.SectionName != "" {
		parts = append(parts, "## "+parent.SectionName)
	}
	parts = append(parts, content)
	if parent.HasStatisticalData || parent.IsStatistical {
		parts = append(parts, statisticalMarker)
	}
	return strings.Join(parts, "\n\n")
}

func enrichSubsection(section, subsection, content string) string {
	parts := make([]string, 0, 3)
	if section != "" {
		parts = append(parts, "## "+section)
	}
	if subsection != "" {
		parts = append(parts, "### "+subsection)
	}
	parts = append(parts, content)
	return strings.Join(parts, "\n\n")
}
