package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cadence/practice/internal/db"
	"cadence/practice/internal/model"
)

// pieceRequest serves both create and update. On update, omitted fields keep
// their value and an empty string clears an optional one.
type pieceRequest struct {
	Name                     *string `json:"name"`
	Composer                 *string `json:"composer"`
	Difficulty               *string `json:"difficulty"`
	TargetBPM                *int    `json:"targetBPM"`
	DefaultReferenceVideoURL *string `json:"defaultReferenceVideoUrl"`
	Notes                    *string `json:"notes"`
}

func (req pieceRequest) validate() string {
	if req.TargetBPM != nil && *req.TargetBPM <= 0 {
		return "invalid_target_bpm"
	}
	if link := trimmed(req.DefaultReferenceVideoURL); link != nil && !validURL(*link) {
		return "invalid_reference_video_url"
	}
	return ""
}

func (req pieceRequest) apply(p *model.Piece) {
	if name := trimmed(req.Name); name != nil {
		p.Name = *name
	}
	if req.Composer != nil {
		p.Composer = trimmed(req.Composer)
	}
	if req.Difficulty != nil {
		p.Difficulty = trimmed(req.Difficulty)
	}
	if req.TargetBPM != nil {
		p.TargetBPM = req.TargetBPM
	}
	if req.DefaultReferenceVideoURL != nil {
		p.DefaultReferenceVideoURL = trimmed(req.DefaultReferenceVideoURL)
	}
	if req.Notes != nil {
		p.Notes = trimmed(req.Notes)
	}
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (s *Server) handleListPieces(w http.ResponseWriter, r *http.Request) {
	pieces, err := s.store.ListPieces(r.Context(), callerFrom(r).ID)
	if err != nil {
		s.serverError(w, r, err, "list pieces")
		return
	}
	out := make([]pieceView, 0, len(pieces))
	for _, piece := range pieces {
		out = append(out, mapPiece(piece))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pieces": out})
}

func (s *Server) handleCreatePiece(w http.ResponseWriter, r *http.Request) {
	var req pieceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if trimmed(req.Name) == nil {
		writeError(w, http.StatusBadRequest, "missing_name")
		return
	}
	if code := req.validate(); code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	now := s.now().UTC()
	piece := model.Piece{
		ID:          uuid.NewString(),
		StudentID:   callerFrom(r).ID,
		DateStarted: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req.apply(&piece)
	if err := s.store.CreatePiece(r.Context(), piece); err != nil {
		s.serverError(w, r, err, "create piece")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"piece": mapPiece(piece)})
}

// loadOwnPiece fetches a piece belonging to the calling student.
func (s *Server) loadOwnPiece(w http.ResponseWriter, r *http.Request) (model.Piece, bool) {
	piece, err := s.store.GetPiece(r.Context(), chi.URLParam(r, "pieceId"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "piece_not_found")
		return piece, false
	}
	if err != nil {
		s.serverError(w, r, err, "load piece")
		return piece, false
	}
	if piece.StudentID != callerFrom(r).ID {
		writeError(w, http.StatusForbidden, "forbidden")
		return piece, false
	}
	return piece, true
}

func (s *Server) handleUpdatePiece(w http.ResponseWriter, r *http.Request) {
	var req pieceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	piece, ok := s.loadOwnPiece(w, r)
	if !ok {
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing_name")
		return
	}
	if code := req.validate(); code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	req.apply(&piece)
	piece.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePiece(r.Context(), piece); err != nil {
		s.serverError(w, r, err, "update piece")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"piece": mapPiece(piece)})
}

func (s *Server) handleDeletePiece(w http.ResponseWriter, r *http.Request) {
	piece, ok := s.loadOwnPiece(w, r)
	if !ok {
		return
	}
	if err := s.store.DeletePiece(r.Context(), piece.ID); err != nil {
		s.serverError(w, r, err, "delete piece")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
