package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
)

const (
	defaultCrossEncoderTopN     = 20
	defaultCrossEncoderTopM     = 10
	defaultCrossEncoderTimeout  = 10 * time.Second
	crossEncoderMaxPassageRunes = 2000
)

// CrossEncoderStage reorders the head of a reranked list with a pairwise
// relevance model. When the model is unavailable the stage-1 order is kept.
type CrossEncoderStage struct {
	encoder ports.CrossEncoder
	topN    int
	topM    int
	timeout time.Duration
	logger  *slog.Logger
}

type CrossEncoderOptions struct {
	TopN    int
	TopM    int
	Timeout time.Duration
}

func NewCrossEncoderStage(encoder ports.CrossEncoder, opts CrossEncoderOptions, logger *slog.Logger) *CrossEncoderStage {
	s := &CrossEncoderStage{
		encoder: encoder,
		topN:    opts.TopN,
		topM:    opts.TopM,
		timeout: opts.Timeout,
		logger:  logger,
	}
	if s.topN <= 0 {
		s.topN = defaultCrossEncoderTopN
	}
	if s.topM <= 0 {
		s.topM = defaultCrossEncoderTopM
	}
	if s.timeout <= 0 {
		s.timeout = defaultCrossEncoderTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CandidateLimit is how many stage-1 results the stage wants as input.
func (s *CrossEncoderStage) CandidateLimit() int {
	return s.topN
}

func (s *CrossEncoderStage) Apply(ctx context.Context, query string, scored []domain.ScoredResult) []domain.ScoredResult {
	head := scored
	if len(head) > s.topN {
		head = head[:s.topN]
	}
	if len(head) == 0 || s.encoder == nil {
		return truncateScored(head, s.topM)
	}

	passages := make([]string, len(head))
	for i, r := range head {
		passages[i] = truncateRunes(r.Content, crossEncoderMaxPassageRunes)
	}

	scoreCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	scores, err := s.encoder.Score(scoreCtx, query, passages)
	if err == nil && len(scores) != len(head) {
		err = fmt.Errorf("cross-encoder returned %d scores for %d passages", len(scores), len(head))
	}
	if err != nil {
		s.logger.Warn("cross_encoder_fallback", "candidates", len(head), "error", err)
		return truncateScored(head, s.topM)
	}

	out := make([]domain.ScoredResult, len(head))
	copy(out, head)
	for i := range out {
		out[i].CrossEncoderScore = scores[i]
		out[i].CrossEncoded = true
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CrossEncoderScore > out[j].CrossEncoderScore
	})
	return truncateScored(out, s.topM)
}

func truncateScored(results []domain.ScoredResult, limit int) []domain.ScoredResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
