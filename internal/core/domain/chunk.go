package domain

import "strings"

type ChunkLevel string

const (
	LevelDocument   ChunkLevel = "DOCUMENT"
	LevelSection    ChunkLevel = "SECTION"
	LevelSubsection ChunkLevel = "SUBSECTION"
	LevelParagraph  ChunkLevel = "PARAGRAPH"
)

func ParseChunkLevel(raw string) (ChunkLevel, bool) {
	switch ChunkLevel(strings.ToUpper(strings.TrimSpace(raw))) {
	case LevelDocument:
		return LevelDocument, true
	case LevelSection:
		return LevelSection, true
	case LevelSubsection:
		return LevelSubsection, true
	case LevelParagraph:
		return LevelParagraph, true
	default:
		return "", false
	}
}

// Chunk mirrors the properties stored per point in the chunk index.
type Chunk struct {
	ChunkID            string     `json:"chunk_id"`
	DocumentID         string     `json:"document_id"`
	Level              ChunkLevel `json:"level"`
	Content            string     `json:"content"`
	SectionName        string     `json:"section_name,omitempty"`
	SubsectionName     string     `json:"subsection_name,omitempty"`
	ParagraphIndex     int        `json:"paragraph_index,omitempty"`
	IsStatistical      bool       `json:"is_statistical"`
	HasStatisticalData bool       `json:"has_statistical_data,omitempty"`
	ParentChunkID      string     `json:"parent_chunk_id,omitempty"`
}

type DocumentMetadata struct {
	Title        string `json:"title,omitempty"`
	URL          string `json:"url,omitempty"`
	DOI          string `json:"doi,omitempty"`
	TopicName    string `json:"topic_name,omitempty"`
	QualityGrade string `json:"quality_grade,omitempty"`
}

func (m DocumentMetadata) IsZero() bool {
	return m == DocumentMetadata{}
}

// Provenance records which search branch produced a candidate and where.
type Provenance struct {
	Branch   int             `json:"branch"`
	Source   string          `json:"source"`
	Strategy VariantStrategy `json:"strategy,omitempty"`
	Rank     int             `json:"rank"`
	Weight   float64         `json:"weight"`
	Intent   Intent          `json:"intent,omitempty"`
	Priority int             `json:"priority,omitempty"`
}

type Candidate struct {
	Chunk
	Distance float64 `json:"distance"`
	// DistanceUnknown marks candidates whose index reported no usable distance.
	DistanceUnknown bool `json:"-"`
	// IndexScore is the similarity the index reported instead of a distance,
	// such as a fused hybrid score. Only read when DistanceUnknown is set.
	IndexScore float64          `json:"index_score,omitempty"`
	Metadata   DocumentMetadata `json:"metadata"`
	Provenance Provenance       `json:"provenance"`
}

// EffectiveDistance is Distance, or 1 - IndexScore when the index reported no
// distance. A candidate with neither sorts as far as possible.
func (c Candidate) EffectiveDistance() float64 {
	if c.DistanceUnknown {
		return clampUnit(1 - c.IndexScore)
	}
	return c.Distance
}

// RelevanceScore reports 1 - EffectiveDistance clamped to [0,1].
func (c Candidate) RelevanceScore() float64 {
	return clampUnit(1 - c.EffectiveDistance())
}

func ClampDistance(distance float64) float64 {
	return clampUnit(distance)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SearchFilter is applied by the index itself.
type SearchFilter struct {
	Level           ChunkLevel `json:"level,omitempty"`
	SectionName     string     `json:"section_name,omitempty"`
	StatisticalOnly bool       `json:"statistical_only,omitempty"`
}

func (f SearchFilter) IsEmpty() bool {
	return f.Level == "" && f.SectionName == "" && !f.StatisticalOnly
}
