package neuralmem

import (
	"time"
)

type PatternType string

const (
	PatternCode         PatternType = "code"
	PatternArchitecture PatternType = "architecture"
	PatternFix          PatternType = "fix"
	PatternOptimization PatternType = "optimization"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type RelationshipType string

const (
	RelationDependsOn     RelationshipType = "depends_on"
	RelationConflictsWith RelationshipType = "conflicts_with"
	RelationEnhances      RelationshipType = "enhances"
	RelationAlternativeTo RelationshipType = "alternative_to"
)

type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionPaused    SessionState = "paused"
	SessionCompleted SessionState = "completed"
)

// Pattern is a reusable unit of recorded knowledge, keyed uniquely and scored
// by how useful it has proven in practice. QualityScore is derived from the
// counters and is recomputed lazily; a read through GetPattern never returns
// a score older than the latest counter mutation.
type Pattern struct {
	ID           int64
	Key          string
	Type         PatternType
	Content      string
	Context      string
	Embedding    []float32
	QualityScore float64
	UsageCount   int
	SuccessCount int
	FailureCount int
	CreatedAt    time.Time
	LastUsed     *time.Time
	LastModified time.Time
}

type Session struct {
	ID               int64
	SessionID        string
	Context          string
	Interface        string
	LLMModel         string
	InteractionCount int
	TotalTokensUsed  int
	TotalCostUSD     float64
	StartedAt        time.Time
	EndedAt          *time.Time
	State            SessionState
}

// Interaction is a single prompt/response event within a session.
// SequenceNum is monotonic and gap-free per session.
type Interaction struct {
	ID            int64
	SessionID     int64
	SequenceNum   int
	Prompt        string
	Response      string
	Patterns      []int64
	NewPatterns   []int64
	TokensUsed    int
	CostUSD       float64
	LatencyMs     int
	WasSuccessful bool
	ErrorMessage  string
	CreatedAt     time.Time
}

// InteractionInput is the caller-supplied payload for AppendInteraction.
// Embeddings are optional and must match the store's configured dimensions.
type InteractionInput struct {
	Prompt            string
	Response          string
	PromptEmbedding   []float32
	ResponseEmbedding []float32
	Patterns          []int64
	NewPatterns       []int64
	TokensUsed        int
	CostUSD           float64
	LatencyMs         int
	WasSuccessful     bool
	ErrorMessage      string
}

// ContextBridge links a source context to a target context through a pattern.
// Bridges are directional and owned by the bridge engine; the unique key is
// (source_context, target_context, pattern_id).
type ContextBridge struct {
	ID            int64
	SourceContext string
	TargetContext string
	PatternID     int64
	Confidence    float64
	UsageCount    int
	SuccessCount  int
	CreatedAt     time.Time
}

type PatternRelationship struct {
	ID            int64
	PatternA      int64
	PatternB      int64
	Type          RelationshipType
	Strength      float64
	EvidenceCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LearningEvent is an append-only audit record; rows are never mutated or
// deleted, even when the owning session is removed.
type LearningEvent struct {
	ID            string
	SessionID     *int64
	InteractionID *int64
	PatternID     *int64
	EventType     string
	Details       string
	CreatedAt     time.Time
}

// GlobalInsight is a derived rollup owned by the insight aggregator. Readers
// observe the last successful refresh, not the absolute latest write.
type GlobalInsight struct {
	ID             string
	Type           string
	Scope          string
	Title          string
	Payload        string
	Evidence       string
	Confidence     float64
	Active         bool
	TimesValidated int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Match is a single similarity search result, ordered descending by
// similarity (1 - cosine distance).
type Match struct {
	PatternID  int64
	Similarity float64
}
