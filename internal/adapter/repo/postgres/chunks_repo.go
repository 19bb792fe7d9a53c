package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// ChunkRepo persists per-run audio chunks for streaming uploads.
type ChunkRepo struct{ Pool PgxPool }

// NewChunkRepo constructs a ChunkRepo with the given pool.
func NewChunkRepo(p PgxPool) *ChunkRepo { return &ChunkRepo{Pool: p} }

// Upsert stores a chunk keyed by (run_id, idx). Re-sending the same index
// replaces the previous chunk so clients can retry uploads.
func (r *ChunkRepo) Upsert(ctx domain.Context, c domain.Chunk) (string, error) {
	tracer := otel.Tracer("repo.chunks")
	ctx, span := tracer.Start(ctx, "chunks.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "chunks"),
	)
	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO chunks (id, run_id, idx, audio_path, transcript, duration_seconds, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (run_id, idx) DO UPDATE SET
			audio_path = EXCLUDED.audio_path,
			transcript = EXCLUDED.transcript,
			duration_seconds = EXCLUDED.duration_seconds,
			status = EXCLUDED.status
		RETURNING id`
	row := r.Pool.QueryRow(ctx, q, id, c.RunID, c.Idx, c.AudioPath, c.Transcript, c.DurationSeconds, c.Status, time.Now().UTC())
	var gotID string
	if err := row.Scan(&gotID); err != nil {
		return "", fmt.Errorf("op=chunk.upsert: %w", err)
	}
	return gotID, nil
}

// ListByRun returns the run's chunks ordered by index.
func (r *ChunkRepo) ListByRun(ctx domain.Context, runID string) ([]domain.Chunk, error) {
	tracer := otel.Tracer("repo.chunks")
	ctx, span := tracer.Start(ctx, "chunks.ListByRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "chunks"),
	)
	q := `SELECT id, run_id, idx, audio_path, transcript, duration_seconds, status, created_at
		FROM chunks WHERE run_id=$1 ORDER BY idx ASC`
	rows, err := r.Pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("op=chunk.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.RunID, &c.Idx, &c.AudioPath, &c.Transcript, &c.DurationSeconds, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=chunk.list: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=chunk.list: %w", err)
	}
	return out, nil
}
