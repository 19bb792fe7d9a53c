package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/internal/usecase"
)

type createRunRequest struct {
	RubricID              *string            `json:"rubric_id"`
	Criteria              []domain.Criterion `json:"criteria"`
	RubricName            string             `json:"rubric_name"`
	TargetDurationSeconds int                `json:"target_duration_seconds"`
	MaxDurationSeconds    int                `json:"max_duration_seconds"`
}

type runResponse struct {
	ID              string                 `json:"id"`
	Status          domain.RunStatus       `json:"status"`
	Transcript      string                 `json:"transcript,omitempty"`
	WordCount       int                    `json:"word_count,omitempty"`
	DurationSeconds float64                `json:"duration_seconds,omitempty"`
	RubricID        *string                `json:"rubric_id,omitempty"`
	Analysis        *domain.AnalysisResult `json:"analysis,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

func toRunResponse(run domain.Run) runResponse {
	return runResponse{
		ID:              run.ID,
		Status:          run.Status,
		Transcript:      run.Transcript,
		WordCount:       run.WordCount,
		DurationSeconds: run.DurationSeconds,
		RubricID:        run.RubricID,
		Analysis:        run.Analysis,
		Error:           run.Error,
	}
}

// CreateRunHandler registers a new practice run.
func (s *Server) CreateRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRunRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument), nil)
				return
			}
		}
		run, err := s.Runs.Create(r.Context(), IdentityFrom(r), usecase.CreateInput{
			RubricID:              req.RubricID,
			Criteria:              req.Criteria,
			RubricName:            req.RubricName,
			TargetDurationSeconds: req.TargetDurationSeconds,
			MaxDurationSeconds:    req.MaxDurationSeconds,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toRunResponse(run))
	}
}

// GetRunHandler returns the run status envelope with analysis when ready.
func (s *Server) GetRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := s.Runs.Get(r.Context(), IdentityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRunResponse(run))
	}
}

// UploadRunAudioHandler accepts the multipart audio blob for a run.
func (s *Server) UploadRunAudioHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, contentType, data, ok := s.readAudioPart(w, r)
		if !ok {
			return
		}
		runID := chi.URLParam(r, "id")
		if err := s.Runs.UploadAudio(r.Context(), IdentityFrom(r), runID, filename, contentType, data); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": runID, "status": string(domain.RunUploaded)})
	}
}

// AddRunChunkHandler accepts one audio segment plus its index; the chunk is
// transcribed immediately.
func (s *Server) AddRunChunkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, contentType, data, ok := s.readAudioPart(w, r)
		if !ok {
			return
		}
		idx, err := strconv.Atoi(r.FormValue("idx"))
		if err != nil || idx < 0 {
			writeError(w, r, fmt.Errorf("%w: idx must be a non-negative integer", domain.ErrInvalidArgument), map[string]string{"field": "idx"})
			return
		}
		chunk, err := s.Runs.AddChunk(r.Context(), IdentityFrom(r), chi.URLParam(r, "id"), idx, filename, contentType, data)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":               chunk.ID,
			"idx":              chunk.Idx,
			"transcript":       chunk.Transcript,
			"duration_seconds": chunk.DurationSeconds,
		})
	}
}

// TranscribeRunHandler runs speech-to-text over the uploaded audio.
func (s *Server) TranscribeRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := s.Runs.Transcribe(r.Context(), IdentityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRunResponse(run))
	}
}

type analyzeRequest struct {
	RubricID         *string            `json:"rubric_id"`
	Criteria         []domain.Criterion `json:"criteria"`
	PitchContext     string             `json:"pitch_context"`
	GuidingQuestions []string           `json:"guiding_questions"`
}

// AnalyzeRunHandler scores the transcript against the resolved rubric.
func (s *Server) AnalyzeRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument), nil)
				return
			}
		}
		run, err := s.Analyze.Analyze(r.Context(), IdentityFrom(r), chi.URLParam(r, "id"), usecase.AnalyzeInput{
			RubricID:         req.RubricID,
			Criteria:         req.Criteria,
			PitchContext:     req.PitchContext,
			GuidingQuestions: req.GuidingQuestions,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRunResponse(run))
	}
}

// ClaimRunHandler attaches an anonymous run to the authenticated caller.
func (s *Server) ClaimRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := s.Runs.Claim(r.Context(), IdentityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRunResponse(run))
	}
}

// RunAudioURLHandler returns a time-limited signed URL for the audio blob.
func (s *Server) RunAudioURLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := s.Runs.AudioURL(r.Context(), IdentityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"url":        url,
			"expires_in": int(s.Cfg.SignedURLTTL.Seconds()),
		})
	}
}

// readAudioPart parses the multipart form and returns the sniffed audio
// payload. Writes the error response itself when the part is unusable.
func (s *Server) readAudioPart(w http.ResponseWriter, r *http.Request) (filename, contentType string, data []byte, ok bool) {
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
		return "", "", nil, false
	}
	maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
				Code: "INVALID_ARGUMENT", Message: "payload too large",
				Details: map[string]int64{"max_mb": s.Cfg.MaxUploadMB},
			}})
			return "", "", nil, false
		}
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return "", "", nil, false
	}
	f, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: audio file required", domain.ErrInvalidArgument), map[string]string{"field": "audio"})
		return "", "", nil, false
	}
	defer func() { _ = f.Close() }()
	data, err = io.ReadAll(f)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: audio read: %v", domain.ErrInvalidArgument, err), nil)
		return "", "", nil, false
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "audio/") && !strings.HasPrefix(mt.String(), "video/") {
		// webm/mp4 recordings sniff as video containers
		writeError(w, r, fmt.Errorf("%w: unsupported media type %s", domain.ErrInvalidArgument, mt.String()), nil)
		return "", "", nil, false
	}
	return hdr.Filename, mt.String(), data, true
}
