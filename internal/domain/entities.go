package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// Criterion is one weighted evaluation dimension of a rubric.
type Criterion struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

// Rubric is a named set of weighted criteria with optional timing targets.
// Invariant: a criterion must have a non-empty name. Creation enforces a hard
// minimum of 3 criteria; parsing paths only warn below that.
type Rubric struct {
	ID                    string      `json:"id,omitempty"`
	OwnerID               *string     `json:"owner_id,omitempty"`
	Name                  string      `json:"name"`
	Description           string      `json:"description,omitempty"`
	Criteria              []Criterion `json:"criteria"`
	TargetDurationSeconds int         `json:"target_duration_seconds,omitempty"`
	MaxDurationSeconds    int         `json:"max_duration_seconds,omitempty"`
	IsTemplate            bool        `json:"is_template,omitempty"`
	CreatedAt             time.Time   `json:"created_at,omitempty"`
}

// NamedCriteria reports whether the rubric has at least one criterion with a
// non-empty name.
func (r Rubric) NamedCriteria() bool {
	for _, c := range r.Criteria {
		if c.Name != "" {
			return true
		}
	}
	return false
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunUploading   RunStatus = "uploading"
	RunUploaded    RunStatus = "uploaded"
	RunTranscribed RunStatus = "transcribed"
	RunAnalyzing   RunStatus = "analyzing"
	RunAnalyzed    RunStatus = "analyzed"
	RunError       RunStatus = "error"
)

// Run is one pitch attempt, tracked from upload through transcription to
// analysis. Ownership is a user id once claimed, or an anonymous session id.
type Run struct {
	ID              string
	UserID          *string
	SessionID       string
	Status          RunStatus
	AudioPath       string
	Transcript      string
	WordCount       int
	DurationSeconds float64
	RubricID        *string
	RubricSnapshot  *Rubric
	Analysis        *AnalysisResult
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Chunk is a sub-segment of a run's audio/transcript processed independently.
type Chunk struct {
	ID              string
	RunID           string
	Idx             int
	AudioPath       string
	Transcript      string
	DurationSeconds float64
	Status          RunStatus
	CreatedAt       time.Time
}

// Identity describes the caller: an authenticated user id, or an anonymous
// session id when no user is present.
type Identity struct {
	UserID    *string
	SessionID string
}

// Owns reports whether the identity owns the run. Anonymous runs belong to
// whoever holds the session id.
func (id Identity) Owns(r Run) bool {
	if r.UserID != nil {
		return id.UserID != nil && *id.UserID == *r.UserID
	}
	return r.SessionID != "" && r.SessionID == id.SessionID
}

// Transcription is the outcome of a speech-to-text call.
type Transcription struct {
	Text            string
	DurationSeconds float64
}

// Repositories (ports)

type RubricRepository interface {
	Create(ctx Context, r Rubric) (string, error)
	Get(ctx Context, id string) (Rubric, error)
	ListForOwner(ctx Context, ownerID *string) ([]Rubric, error)
	// EarliestTemplate returns the oldest template rubric, the last-resort
	// default for analysis.
	EarliestTemplate(ctx Context) (Rubric, error)
}

type RunRepository interface {
	Create(ctx Context, r Run) (string, error)
	Get(ctx Context, id string) (Run, error)
	UpdateStatus(ctx Context, id string, status RunStatus, errMsg *string) error
	SetAudioPath(ctx Context, id, path string) error
	SetTranscript(ctx Context, id, transcript string, wordCount int, durationSeconds float64) error
	SetAnalysis(ctx Context, id string, res AnalysisResult) error
	SetOwner(ctx Context, id, userID string) error
}

type ChunkRepository interface {
	Upsert(ctx Context, c Chunk) (string, error)
	ListByRun(ctx Context, runID string) ([]Chunk, error)
}

type EntitlementRepository interface {
	// UpsertByCheckoutSession inserts or updates keyed on the payment
	// processor's session id, so webhook and client sync can race safely.
	UpsertByCheckoutSession(ctx Context, e Entitlement) error
	ListActive(ctx Context, id Identity, now time.Time) ([]Entitlement, error)
	// CountByPlan aggregates over all rows; served by the elevated pool.
	CountByPlan(ctx Context) (map[Plan]int64, error)
}

// AIClient (port) covers both structured-JSON completion and speech-to-text,
// which the inference provider exposes on one API surface.
type AIClient interface {
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
	ChatJSONWithImage(ctx Context, systemPrompt, userPrompt, imageMIME string, image []byte, maxTokens int) (string, error)
	Transcribe(ctx Context, filename string, audio []byte) (Transcription, error)
}

// BlobStore (port) is the object storage for audio blobs.
type BlobStore interface {
	Put(ctx Context, path, contentType string, data []byte) error
	Get(ctx Context, path string) ([]byte, error)
	SignedURL(path string, ttl time.Duration) (string, error)
}

// CheckoutProvider (port) wraps the payment processor.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx Context, plan Plan, id Identity) (CheckoutSession, error)
	GetCheckoutSession(ctx Context, sessionID string) (CheckoutSession, error)
}

// CheckoutSession is the processor-side session mirrored into entitlements.
type CheckoutSession struct {
	ID        string
	URL       string
	Plan      Plan
	Paid      bool
	UserID    *string
	SessionID string
}

// Context aliases context.Context so ports read uniformly.
type Context = context.Context
