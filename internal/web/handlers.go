package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/history"
	"github.com/conorfennell/studydeck/internal/srs"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/study"
	"github.com/conorfennell/studydeck/internal/sync"
)

type apiError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{
		Code:      code,
		Message:   message,
		RequestID: chimiddleware.GetReqID(r.Context()),
	}})
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: apiError{
			Code:      "VALIDATION_ERROR",
			Message:   "Validation failed",
			Fields:    fields,
			RequestID: chimiddleware.GetReqID(r.Context()),
		}})
		return false
	}
	return true
}

// handleServiceError maps service errors to responses.
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Not found")
	case errors.Is(err, sync.ErrSourceExists):
		writeError(w, r, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, sync.ErrInvalidSource):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, history.ErrEmptyTitle):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error")
	}
}

type cardResponse struct {
	domain.Flashcard
	DueDate *time.Time `json:"due_date,omitempty"`
	Due     bool       `json:"due"`
}

func (s *Server) cardView(c domain.Flashcard) cardResponse {
	resp := cardResponse{Flashcard: c, Due: srs.IsDue(c, s.study.Now())}
	if due, ok := srs.DueDate(c); ok {
		resp.DueDate = &due
	}
	if resp.Reviews == nil {
		resp.Reviews = []domain.Review{}
	}
	return resp
}

// handleGetDeck reports counts per status and how many cards are due.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.study.Stats(r.Context())
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// handleGetNextReview returns the next due card, or 204 when none is due.
func (s *Server) handleGetNextReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.study.Next(r.Context())
		if errors.Is(err, study.ErrNoDueCards) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.cardView(card))
	}
}

func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due, err := s.study.Due(r.Context())
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		out := make([]cardResponse, 0, len(due))
		for _, c := range due {
			out = append(out, s.cardView(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"cards": out, "count": len(out)})
	}
}

func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.study.Card(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.cardView(card))
	}
}

type reviewRequest struct {
	Correct *bool `json:"correct" validate:"required"`
}

// handlePostReview records a review and returns the updated card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if !s.decode(w, r, &req) {
			return
		}
		card, err := s.study.Answer(r.Context(), chi.URLParam(r, "id"), *req.Correct)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.cardView(card))
	}
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.ListSources(r.Context())
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		if sources == nil {
			sources = []domain.Source{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
	}
}

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
}

// handlePostSource registers a new deck source.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if !s.decode(w, r, &req) {
			return
		}
		source, err := sync.AddSource(r.Context(), s.db, req.Path)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, source)
	}
}

// handleDeleteSource deletes a source and the cards imported from it.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid source ID")
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and returns its report.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.syncer.Run(r.Context())
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

type diffRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// handlePostDiff compares two texts supplied by the caller.
func (s *Server) handlePostDiff() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req diffRequest
		if !s.decode(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, history.CompareText(req.A, req.B))
	}
}

func (s *Server) handleListDocuments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := s.history.Documents(r.Context())
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		if docs == nil {
			docs = []domain.Document{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	}
}

type createDocumentRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body"`
}

func (s *Server) handleCreateDocument() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDocumentRequest
		if !s.decode(w, r, &req) {
			return
		}
		doc, v, err := s.history.Create(r.Context(), req.Title, req.Body)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"document": doc, "version": v})
	}
}

type saveDocumentRequest struct {
	Body string `json:"body"`
}

// handleSaveDocument stores a new version. Saving an unchanged body returns
// 200 with the existing latest version instead of 201.
func (s *Server) handleSaveDocument() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := documentID(w, r)
		if !ok {
			return
		}
		var req saveDocumentRequest
		if !s.decode(w, r, &req) {
			return
		}
		v, created, err := s.history.Save(r.Context(), id, req.Body)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{"version": v, "created": created})
	}
}

func (s *Server) handleGetVersions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := documentID(w, r)
		if !ok {
			return
		}
		versions, err := s.history.Versions(r.Context(), id)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
	}
}

// handleCompareVersions diffs two versions. Missing from/to default to the
// previous and latest versions.
func (s *Server) handleCompareVersions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := documentID(w, r)
		if !ok {
			return
		}
		from, err1 := optionalInt(r.URL.Query().Get("from"))
		to, err2 := optionalInt(r.URL.Query().Get("to"))
		if err1 != nil || err2 != nil {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "from and to must be version numbers")
			return
		}
		c, err := s.history.Compare(r.Context(), id, from, to)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func (s *Server) handleGetSetting() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		value, err := s.db.GetSetting(r.Context(), key)
		if err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
	}
}

type settingRequest struct {
	Value string `json:"value" validate:"max=65536"`
}

func (s *Server) handlePutSetting() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingRequest
		if !s.decode(w, r, &req) {
			return
		}
		key := chi.URLParam(r, "key")
		if err := s.db.SetSetting(r.Context(), key, req.Value); err != nil {
			s.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
	}
}

func documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
