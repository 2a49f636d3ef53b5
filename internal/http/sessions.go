package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"cadence/practice/internal/access"
	"cadence/practice/internal/blob"
	"cadence/practice/internal/db"
	"cadence/practice/internal/metrics"
	"cadence/practice/internal/model"
)

type segmentRequest struct {
	Title             string  `json:"title"`
	Type              string  `json:"type"`
	PieceID           *string `json:"pieceId"`
	Notes             *string `json:"notes"`
	AudioData         string  `json:"audioData"`
	FileName          string  `json:"fileName"`
	Duration          int     `json:"duration"`
	MetronomeBPM      *int    `json:"metronomeBPM"`
	ReferenceVideoURL *string `json:"referenceVideoUrl"`
}

// handleStartSession resumes the caller's ACTIVE session when there is one.
// A student holds at most one ACTIVE session; losing a concurrent start
// resumes the winner's session.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	studentID := callerFrom(r).ID
	resumed, err := s.resumeActiveSession(w, r, studentID)
	if resumed || err != nil {
		return
	}

	now := s.now().UTC()
	zero := 0
	session := model.PracticeSession{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		Title:         "Practice Session - " + now.In(s.location).Format("Jan 2, 2006"),
		Date:          now,
		CreatedAt:     now,
		TotalDuration: &zero,
		Status:        model.SessionActive,
	}
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		if errors.Is(err, db.ErrConflict) {
			if resumed, err := s.resumeActiveSession(w, r, studentID); resumed || err != nil {
				return
			}
		}
		s.serverError(w, r, err, "create session")
		return
	}
	session.Segments = []model.PracticeSegment{}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": mapSession(session), "resumed": false})
}

// resumeActiveSession answers with the student's ACTIVE session when one
// exists. A non-nil error has already been answered.
func (s *Server) resumeActiveSession(w http.ResponseWriter, r *http.Request, studentID string) (bool, error) {
	active, err := s.store.GetActiveSession(r.Context(), studentID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err == nil {
		active, err = s.store.GetSessionDetail(r.Context(), active.ID)
	}
	if err != nil {
		s.serverError(w, r, err, "load active session")
		return false, err
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": mapSession(active), "resumed": true})
	return true, nil
}

func (s *Server) handleGetPracticeSession(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSessionFor(w, r, access.Read, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": mapSession(session)})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSessionFor(w, r, access.WriteAsOwner, false)
	if !ok {
		return
	}
	if session.Status == model.SessionCompleted {
		writeError(w, http.StatusBadRequest, "session_already_completed")
		return
	}
	if err := s.store.CompleteSession(r.Context(), session.ID); err != nil {
		s.serverError(w, r, err, "complete session")
		return
	}
	detail, err := s.store.GetSessionDetail(r.Context(), session.ID)
	if err != nil {
		s.serverError(w, r, err, "load session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": mapSession(detail)})
}

func (s *Server) handleAddSegment(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)
	var req segmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	session, _, ok := s.loadSessionFor(w, r, access.WriteAsOwner, false)
	if !ok {
		return
	}
	if session.Status != model.SessionActive {
		writeError(w, http.StatusBadRequest, "session_not_active")
		return
	}

	title := strings.TrimSpace(req.Title)
	segmentType := model.SegmentType(strings.ToUpper(strings.TrimSpace(req.Type)))
	switch {
	case title == "":
		writeError(w, http.StatusBadRequest, "missing_title")
		return
	case !segmentType.Valid():
		writeError(w, http.StatusBadRequest, "invalid_segment_type")
		return
	case req.Duration <= 0:
		writeError(w, http.StatusBadRequest, "invalid_duration")
		return
	case req.MetronomeBPM != nil && *req.MetronomeBPM <= 0:
		writeError(w, http.StatusBadRequest, "invalid_metronome_bpm")
		return
	case strings.TrimSpace(req.AudioData) == "":
		writeError(w, http.StatusBadRequest, "missing_audio")
		return
	}

	pieceID := trimmed(req.PieceID)
	if pieceID != nil {
		piece, err := s.store.GetPiece(r.Context(), *pieceID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && piece.StudentID != session.StudentID) {
			writeError(w, http.StatusBadRequest, "invalid_piece")
			return
		}
		if err != nil {
			s.serverError(w, r, err, "load piece")
			return
		}
	}

	audio, err := s.decodeUpload(req.AudioData, req.FileName)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	now := s.now().UTC()
	ref, err := s.blobs.Put(r.Context(), blob.SegmentKey(session.StudentID, session.ID, now, audio.ext), audio.data, audio.contentType)
	if err != nil {
		s.serverError(w, r, err, "store segment audio")
		return
	}

	segment := model.PracticeSegment{
		ID:                uuid.NewString(),
		SessionID:         session.ID,
		PieceID:           pieceID,
		Title:             title,
		Type:              segmentType,
		Notes:             trimmed(req.Notes),
		AudioURL:          ref,
		Duration:          req.Duration,
		MetronomeBPM:      req.MetronomeBPM,
		ReferenceVideoURL: trimmed(req.ReferenceVideoURL),
		RecordedAt:        now,
	}
	if err := s.store.AppendSegment(r.Context(), segment); err != nil {
		s.deleteBlobs(r, []string{ref})
		s.serverError(w, r, err, "create segment")
		return
	}
	metrics.ObserveSegment()

	writeJSON(w, http.StatusCreated, map[string]interface{}{"segment": mapSegment(segment)})
}
