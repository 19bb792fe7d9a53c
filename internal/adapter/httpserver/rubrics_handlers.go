package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

type createRubricRequest struct {
	Name                  string             `json:"name" validate:"required"`
	Description           string             `json:"description"`
	Criteria              []domain.Criterion `json:"criteria" validate:"required,min=3"`
	TargetDurationSeconds int                `json:"target_duration_seconds"`
	MaxDurationSeconds    int                `json:"max_duration_seconds"`
}

// CreateRubricHandler stores a caller-authored rubric.
func (s *Server) CreateRubricHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRubricRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		id := IdentityFrom(r)
		rubricID, err := s.Rubrics.Create(r.Context(), domain.Rubric{
			Name:                  req.Name,
			Description:           req.Description,
			Criteria:              req.Criteria,
			TargetDurationSeconds: req.TargetDurationSeconds,
			MaxDurationSeconds:    req.MaxDurationSeconds,
		}, id.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": rubricID})
	}
}

// ListRubricsHandler returns templates plus the caller's own rubrics.
func (s *Server) ListRubricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rubrics, err := s.Rubrics.List(r.Context(), IdentityFrom(r))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if rubrics == nil {
			rubrics = []domain.Rubric{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"rubrics": rubrics})
	}
}

// GetRubricHandler fetches one rubric by id.
func (s *Server) GetRubricHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rb, err := s.Rubrics.Get(r.Context(), IdentityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, rb)
	}
}

// ParseRubricHandler extracts a rubric from multipart file upload
// (rubric_file: .txt/.json/image) or a JSON body {"text": ...}. The reply is
// always 200 with warnings for degraded parses, except for unreadable input.
func (s *Server) ParseRubricHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			s.parseRubricFile(w, r)
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			writeError(w, r, fmt.Errorf("%w: text required", domain.ErrInvalidArgument), nil)
			return
		}
		rb, warnings := s.Rubrics.ParseText(r.Context(), req.Text)
		writeParsed(w, rb, warnings)
	}
}

func (s *Server) parseRubricFile(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return
	}
	f, hdr, err := r.FormFile("rubric_file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: rubric_file required", domain.ErrInvalidArgument), map[string]string{"field": "rubric_file"})
		return
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: read: %v", domain.ErrInvalidArgument, err), nil)
		return
	}

	mt := mimetype.Detect(data)
	switch {
	case strings.HasPrefix(mt.String(), "image/"):
		rb, warnings, err := s.Rubrics.ParseImage(r.Context(), mt.String(), data)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeParsed(w, rb, warnings)
	case mt.Is("application/json") || strings.HasSuffix(strings.ToLower(hdr.Filename), ".json"):
		rb, warnings, err := s.Rubrics.ParseJSON(r.Context(), data)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeParsed(w, rb, warnings)
	case strings.HasPrefix(mt.String(), "text/"):
		rb, warnings := s.Rubrics.ParseText(r.Context(), string(data))
		writeParsed(w, rb, warnings)
	default:
		writeError(w, r, fmt.Errorf("%w: unsupported file type %s", domain.ErrInvalidArgument, mt.String()), nil)
	}
}

func writeParsed(w http.ResponseWriter, rb domain.Rubric, warnings []string) {
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rubric": rb, "warnings": warnings})
}
