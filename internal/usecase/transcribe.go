package usecase

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/pitchpractice/pitchpractice/internal/adapter/observability"
	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/pkg/textx"
)

// Transcribe runs speech-to-text over the run's uploaded audio and stores
// the transcript with its derived metrics. An upstream failure is terminal:
// the run moves to error with the message persisted before the error
// surfaces to the caller.
func (s RunService) Transcribe(ctx domain.Context, id domain.Identity, runID string) (domain.Run, error) {
	run, err := s.Get(ctx, id, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if run.AudioPath == "" {
		return domain.Run{}, fmt.Errorf("op=run.transcribe: no audio uploaded: %w", domain.ErrInvalidArgument)
	}

	audio, err := s.Blobs.Get(ctx, run.AudioPath)
	if err != nil {
		return domain.Run{}, s.failRun(ctx, run.ID, "transcription failed: audio unavailable", err)
	}

	tr, err := s.AI.Transcribe(ctx, path.Base(run.AudioPath), audio)
	if err != nil {
		return domain.Run{}, s.failRun(ctx, run.ID, "transcription failed", err)
	}

	transcript := textx.SanitizeText(tr.Text)
	words := textx.WordCount(transcript)
	if err := s.Runs.SetTranscript(ctx, run.ID, transcript, words, tr.DurationSeconds); err != nil {
		return domain.Run{}, err
	}
	observability.RunTransition(string(domain.RunTranscribed))
	slog.Info("run transcribed", slog.String("run_id", run.ID), slog.Int("words", words), slog.Float64("duration_seconds", tr.DurationSeconds), slog.String("preview", textx.TruncateWords(transcript, 12)))

	run.Transcript = transcript
	run.WordCount = words
	run.DurationSeconds = tr.DurationSeconds
	run.Status = domain.RunTranscribed
	return run, nil
}

// failRun records a terminal error on the run and returns an internal error
// carrying the persisted message.
func (s RunService) failRun(ctx domain.Context, runID, msg string, cause error) error {
	full := fmt.Sprintf("%s: %v", msg, cause)
	if err := s.Runs.UpdateStatus(ctx, runID, domain.RunError, &full); err != nil {
		slog.Error("failed to persist run error", slog.String("run_id", runID), slog.Any("error", err))
	}
	observability.RunTransition(string(domain.RunError))
	return fmt.Errorf("op=run.transcribe: %w: %s", domain.ErrInternal, full)
}
