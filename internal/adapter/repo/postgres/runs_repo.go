package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// RunRepo persists practice runs. Rubric snapshots and analysis results are
// stored as JSONB.
type RunRepo struct{ Pool PgxPool }

// NewRunRepo constructs a RunRepo with the given pool.
func NewRunRepo(p PgxPool) *RunRepo { return &RunRepo{Pool: p} }

func runSpan(ctx domain.Context, op, dbOp string) (domain.Context, func()) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, op)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", dbOp),
		attribute.String("db.sql.table", "runs"),
	)
	return ctx, func() { span.End() }
}

// Create stores a new run and returns its id (generates one if empty).
func (r *RunRepo) Create(ctx domain.Context, run domain.Run) (string, error) {
	ctx, end := runSpan(ctx, "runs.Create", "INSERT")
	defer end()
	id := run.ID
	if id == "" {
		id = uuid.New().String()
	}
	snapshot, err := marshalNullable(run.RubricSnapshot)
	if err != nil {
		return "", fmt.Errorf("op=run.create: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO runs (id, user_id, session_id, status, audio_path, transcript, word_count, duration_seconds, rubric_id, rubric_snapshot, analysis, error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL,$11,$12,$12)`
	_, err = r.Pool.Exec(ctx, q, id, run.UserID, run.SessionID, run.Status, run.AudioPath, run.Transcript, run.WordCount, run.DurationSeconds, run.RubricID, snapshot, run.Error, now)
	if err != nil {
		return "", fmt.Errorf("op=run.create: %w", err)
	}
	return id, nil
}

// Get loads a run by id or returns domain.ErrNotFound.
func (r *RunRepo) Get(ctx domain.Context, id string) (domain.Run, error) {
	ctx, end := runSpan(ctx, "runs.Get", "SELECT")
	defer end()
	q := `SELECT id, user_id, session_id, status, audio_path, transcript, word_count, duration_seconds, rubric_id, rubric_snapshot, analysis, error, created_at, updated_at
		FROM runs WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var run domain.Run
	var snapshot, analysis []byte
	if err := row.Scan(&run.ID, &run.UserID, &run.SessionID, &run.Status, &run.AudioPath, &run.Transcript, &run.WordCount, &run.DurationSeconds, &run.RubricID, &snapshot, &analysis, &run.Error, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Run{}, fmt.Errorf("op=run.get: %w", domain.ErrNotFound)
		}
		return domain.Run{}, fmt.Errorf("op=run.get: %w", err)
	}
	if len(snapshot) > 0 {
		var rb domain.Rubric
		if err := json.Unmarshal(snapshot, &rb); err != nil {
			return domain.Run{}, fmt.Errorf("op=run.get: %w", err)
		}
		run.RubricSnapshot = &rb
	}
	if len(analysis) > 0 {
		var res domain.AnalysisResult
		if err := json.Unmarshal(analysis, &res); err != nil {
			return domain.Run{}, fmt.Errorf("op=run.get: %w", err)
		}
		run.Analysis = &res
	}
	return run, nil
}

// UpdateStatus transitions the run and records an error message when the
// transition is terminal failure.
func (r *RunRepo) UpdateStatus(ctx domain.Context, id string, status domain.RunStatus, errMsg *string) error {
	ctx, end := runSpan(ctx, "runs.UpdateStatus", "UPDATE")
	defer end()
	msg := ""
	if errMsg != nil {
		msg = *errMsg
	}
	q := `UPDATE runs SET status=$2, error=$3, updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=run.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=run.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// SetAudioPath records the object storage path of the run's audio.
func (r *RunRepo) SetAudioPath(ctx domain.Context, id, path string) error {
	ctx, end := runSpan(ctx, "runs.SetAudioPath", "UPDATE")
	defer end()
	q := `UPDATE runs SET audio_path=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=run.set_audio_path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=run.set_audio_path: %w", domain.ErrNotFound)
	}
	return nil
}

// SetTranscript records the transcript and moves the run to transcribed.
func (r *RunRepo) SetTranscript(ctx domain.Context, id, transcript string, wordCount int, durationSeconds float64) error {
	ctx, end := runSpan(ctx, "runs.SetTranscript", "UPDATE")
	defer end()
	q := `UPDATE runs SET transcript=$2, word_count=$3, duration_seconds=$4, status=$5, error='', updated_at=$6 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, transcript, wordCount, durationSeconds, domain.RunTranscribed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=run.set_transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=run.set_transcript: %w", domain.ErrNotFound)
	}
	return nil
}

// SetAnalysis records the analysis result and moves the run to analyzed.
func (r *RunRepo) SetAnalysis(ctx domain.Context, id string, res domain.AnalysisResult) error {
	ctx, end := runSpan(ctx, "runs.SetAnalysis", "UPDATE")
	defer end()
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("op=run.set_analysis: %w", err)
	}
	q := `UPDATE runs SET analysis=$2, status=$3, error='', updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, b, domain.RunAnalyzed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=run.set_analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=run.set_analysis: %w", domain.ErrNotFound)
	}
	return nil
}

// SetOwner claims an anonymous run for a user. The caller enforces claim
// semantics; this only writes the owner column.
func (r *RunRepo) SetOwner(ctx domain.Context, id, userID string) error {
	ctx, end := runSpan(ctx, "runs.SetOwner", "UPDATE")
	defer end()
	q := `UPDATE runs SET user_id=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=run.set_owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=run.set_owner: %w", domain.ErrNotFound)
	}
	return nil
}

func marshalNullable(rb *domain.Rubric) ([]byte, error) {
	if rb == nil {
		return nil, nil
	}
	return json.Marshal(rb)
}
