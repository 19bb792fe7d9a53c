package usecase

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pitchpractice/pitchpractice/internal/adapter/observability"
	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/pkg/textx"
)

// RunService manages the run lifecycle from creation through audio upload to
// transcription.
type RunService struct {
	Runs         domain.RunRepository
	Rubrics      domain.RubricRepository
	Chunks       domain.ChunkRepository
	Blobs        domain.BlobStore
	AI           domain.AIClient
	SignedURLTTL time.Duration
}

// NewRunService constructs a RunService with its dependencies.
func NewRunService(runs domain.RunRepository, rubrics domain.RubricRepository, chunks domain.ChunkRepository, blobs domain.BlobStore, aicl domain.AIClient, signedURLTTL time.Duration) RunService {
	return RunService{Runs: runs, Rubrics: rubrics, Chunks: chunks, Blobs: blobs, AI: aicl, SignedURLTTL: signedURLTTL}
}

// CreateInput carries the optional rubric binding for a new run. When the
// client supplies inline criteria they are frozen into a snapshot so later
// rubric edits cannot change this run's scoring basis.
type CreateInput struct {
	RubricID              *string
	Criteria              []domain.Criterion
	RubricName            string
	TargetDurationSeconds int
	MaxDurationSeconds    int
}

// Create registers a run in status uploading, owned by the caller.
func (s RunService) Create(ctx domain.Context, id domain.Identity, in CreateInput) (domain.Run, error) {
	run := domain.Run{
		UserID:    id.UserID,
		SessionID: id.SessionID,
		Status:    domain.RunUploading,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if in.RubricID != nil && *in.RubricID != "" {
		if _, err := s.Rubrics.Get(ctx, *in.RubricID); err != nil {
			return domain.Run{}, fmt.Errorf("op=run.create: rubric: %w", err)
		}
		run.RubricID = in.RubricID
	}
	if len(in.Criteria) > 0 {
		name := in.RubricName
		if name == "" {
			name = "Custom Rubric"
		}
		run.RubricSnapshot = &domain.Rubric{
			Name:                  name,
			Criteria:              in.Criteria,
			TargetDurationSeconds: in.TargetDurationSeconds,
			MaxDurationSeconds:    in.MaxDurationSeconds,
		}
	}
	runID, err := s.Runs.Create(ctx, run)
	if err != nil {
		return domain.Run{}, err
	}
	run.ID = runID
	observability.RunTransition(string(domain.RunUploading))
	return run, nil
}

// Get loads a run the identity owns.
func (s RunService) Get(ctx domain.Context, id domain.Identity, runID string) (domain.Run, error) {
	run, err := s.Runs.Get(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if !id.Owns(run) {
		return domain.Run{}, fmt.Errorf("op=run.get: %w", domain.ErrForbidden)
	}
	return run, nil
}

// Claim attaches an anonymous run to the authenticated caller. Claiming a
// run you already own is a no-op; a run owned by someone else is forbidden.
func (s RunService) Claim(ctx domain.Context, id domain.Identity, runID string) (domain.Run, error) {
	if id.UserID == nil {
		return domain.Run{}, fmt.Errorf("op=run.claim: %w", domain.ErrUnauthenticated)
	}
	run, err := s.Runs.Get(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if run.UserID != nil {
		if *run.UserID == *id.UserID {
			return run, nil
		}
		return domain.Run{}, fmt.Errorf("op=run.claim: %w", domain.ErrForbidden)
	}
	if err := s.Runs.SetOwner(ctx, runID, *id.UserID); err != nil {
		return domain.Run{}, err
	}
	run.UserID = id.UserID
	return run, nil
}

// UploadAudio stores the recording and moves the run to uploaded.
func (s RunService) UploadAudio(ctx domain.Context, id domain.Identity, runID, filename, contentType string, data []byte) error {
	run, err := s.Get(ctx, id, runID)
	if err != nil {
		return err
	}
	objPath := audioPath(run.ID, filename)
	if err := s.Blobs.Put(ctx, objPath, contentType, data); err != nil {
		return fmt.Errorf("op=run.upload_audio: %w", err)
	}
	if err := s.Runs.SetAudioPath(ctx, run.ID, objPath); err != nil {
		return err
	}
	if err := s.Runs.UpdateStatus(ctx, run.ID, domain.RunUploaded, nil); err != nil {
		return err
	}
	observability.RunTransition(string(domain.RunUploaded))
	return nil
}

// AudioURL returns a time-limited signed URL for the run's audio blob.
func (s RunService) AudioURL(ctx domain.Context, id domain.Identity, runID string) (string, error) {
	run, err := s.Get(ctx, id, runID)
	if err != nil {
		return "", err
	}
	if run.AudioPath == "" {
		return "", fmt.Errorf("op=run.audio_url: no audio: %w", domain.ErrNotFound)
	}
	url, err := s.Blobs.SignedURL(run.AudioPath, s.SignedURLTTL)
	if err != nil {
		return "", fmt.Errorf("op=run.audio_url: %w", err)
	}
	return url, nil
}

// AddChunk stores one audio segment, transcribes it immediately, and
// reassembles the run transcript from all chunks received so far.
func (s RunService) AddChunk(ctx domain.Context, id domain.Identity, runID string, idx int, filename, contentType string, data []byte) (domain.Chunk, error) {
	run, err := s.Get(ctx, id, runID)
	if err != nil {
		return domain.Chunk{}, err
	}
	objPath := chunkPath(run.ID, idx, filename)
	if err := s.Blobs.Put(ctx, objPath, contentType, data); err != nil {
		return domain.Chunk{}, fmt.Errorf("op=run.add_chunk: %w", err)
	}
	chunk := domain.Chunk{
		RunID:     run.ID,
		Idx:       idx,
		AudioPath: objPath,
		CreatedAt: time.Now().UTC(),
	}
	tr, err := s.AI.Transcribe(ctx, path.Base(objPath), data)
	if err != nil {
		chunk.Status = domain.RunError
		if _, uerr := s.Chunks.Upsert(ctx, chunk); uerr != nil {
			return domain.Chunk{}, uerr
		}
		return domain.Chunk{}, fmt.Errorf("op=run.add_chunk: %w: transcription failed: %v", domain.ErrInternal, err)
	}
	chunk.Transcript = tr.Text
	chunk.DurationSeconds = tr.DurationSeconds
	chunk.Status = domain.RunTranscribed
	chunkID, err := s.Chunks.Upsert(ctx, chunk)
	if err != nil {
		return domain.Chunk{}, err
	}
	chunk.ID = chunkID

	if err := s.reassemble(ctx, run.ID); err != nil {
		return domain.Chunk{}, err
	}
	return chunk, nil
}

// reassemble rebuilds the run transcript from chunk transcripts in index
// order and refreshes the derived metrics.
func (s RunService) reassemble(ctx domain.Context, runID string) error {
	chunks, err := s.Chunks.ListByRun(ctx, runID)
	if err != nil {
		return err
	}
	var parts []string
	var total float64
	for _, c := range chunks {
		if c.Transcript != "" {
			parts = append(parts, c.Transcript)
		}
		total += c.DurationSeconds
	}
	transcript := textx.SanitizeText(strings.Join(parts, " "))
	if err := s.Runs.SetTranscript(ctx, runID, transcript, textx.WordCount(transcript), total); err != nil {
		return err
	}
	observability.RunTransition(string(domain.RunTranscribed))
	return nil
}

func audioPath(runID, filename string) string {
	return fmt.Sprintf("runs/%s/audio%s", runID, extOf(filename))
}

func chunkPath(runID string, idx int, filename string) string {
	return fmt.Sprintf("runs/%s/chunks/%04d%s", runID, idx, extOf(filename))
}

func extOf(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".webm"
	}
	return ext
}
