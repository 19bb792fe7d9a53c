// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository ports declared in the domain package with
// connection pooling and per-query tracing.
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

// RubricRepo persists and loads rubrics using a minimal pgx pool.
type RubricRepo struct{ Pool PgxPool }

// NewRubricRepo constructs a RubricRepo with the given pool.
func NewRubricRepo(p PgxPool) *RubricRepo { return &RubricRepo{Pool: p} }

// Create stores a new rubric and returns its id (generates one if empty).
func (r *RubricRepo) Create(ctx domain.Context, rb domain.Rubric) (string, error) {
	tracer := otel.Tracer("repo.rubrics")
	ctx, span := tracer.Start(ctx, "rubrics.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "rubrics"),
	)
	id := rb.ID
	if id == "" {
		id = uuid.New().String()
	}
	criteria, err := json.Marshal(rb.Criteria)
	if err != nil {
		return "", fmt.Errorf("op=rubric.create: %w", err)
	}
	q := `INSERT INTO rubrics (id, owner_id, name, description, criteria, target_duration_seconds, max_duration_seconds, is_template, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = r.Pool.Exec(ctx, q, id, rb.OwnerID, rb.Name, rb.Description, criteria, rb.TargetDurationSeconds, rb.MaxDurationSeconds, rb.IsTemplate, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=rubric.create: %w", err)
	}
	return id, nil
}

// Get loads a rubric by id or returns domain.ErrNotFound.
func (r *RubricRepo) Get(ctx domain.Context, id string) (domain.Rubric, error) {
	tracer := otel.Tracer("repo.rubrics")
	ctx, span := tracer.Start(ctx, "rubrics.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "rubrics"),
	)
	q := `SELECT id, owner_id, name, description, criteria, target_duration_seconds, max_duration_seconds, is_template, created_at FROM rubrics WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	rb, err := scanRubric(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Rubric{}, fmt.Errorf("op=rubric.get: %w", domain.ErrNotFound)
		}
		return domain.Rubric{}, fmt.Errorf("op=rubric.get: %w", err)
	}
	return rb, nil
}

// ListForOwner returns templates plus the owner's rubrics, newest first.
// A nil ownerID lists templates only.
func (r *RubricRepo) ListForOwner(ctx domain.Context, ownerID *string) ([]domain.Rubric, error) {
	tracer := otel.Tracer("repo.rubrics")
	ctx, span := tracer.Start(ctx, "rubrics.ListForOwner")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "rubrics"),
	)
	q := `SELECT id, owner_id, name, description, criteria, target_duration_seconds, max_duration_seconds, is_template, created_at
		FROM rubrics WHERE is_template = TRUE OR ($1::text IS NOT NULL AND owner_id = $1)
		ORDER BY is_template DESC, created_at DESC`
	rows, err := r.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("op=rubric.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Rubric
	for rows.Next() {
		rb, err := scanRubric(rows)
		if err != nil {
			return nil, fmt.Errorf("op=rubric.list: %w", err)
		}
		out = append(out, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=rubric.list: %w", err)
	}
	return out, nil
}

// EarliestTemplate returns the oldest template rubric, used as the default
// when an analysis has no explicit rubric.
func (r *RubricRepo) EarliestTemplate(ctx domain.Context) (domain.Rubric, error) {
	tracer := otel.Tracer("repo.rubrics")
	ctx, span := tracer.Start(ctx, "rubrics.EarliestTemplate")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "rubrics"),
	)
	q := `SELECT id, owner_id, name, description, criteria, target_duration_seconds, max_duration_seconds, is_template, created_at
		FROM rubrics WHERE is_template = TRUE ORDER BY created_at ASC LIMIT 1`
	row := r.Pool.QueryRow(ctx, q)
	rb, err := scanRubric(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Rubric{}, fmt.Errorf("op=rubric.earliest_template: %w", domain.ErrNotFound)
		}
		return domain.Rubric{}, fmt.Errorf("op=rubric.earliest_template: %w", err)
	}
	return rb, nil
}

func scanRubric(row pgx.Row) (domain.Rubric, error) {
	var rb domain.Rubric
	var criteria []byte
	if err := row.Scan(&rb.ID, &rb.OwnerID, &rb.Name, &rb.Description, &criteria, &rb.TargetDurationSeconds, &rb.MaxDurationSeconds, &rb.IsTemplate, &rb.CreatedAt); err != nil {
		return domain.Rubric{}, err
	}
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &rb.Criteria); err != nil {
			return domain.Rubric{}, err
		}
	}
	return rb, nil
}
