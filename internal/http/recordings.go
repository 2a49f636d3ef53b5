package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"cadence/practice/internal/access"
	"cadence/practice/internal/blob"
	"cadence/practice/internal/db"
	"cadence/practice/internal/model"
)

const rosterFeedSize = 50

type recordingRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Duration    int     `json:"duration"`
	AudioData   string  `json:"audioData"`
	FileName    string  `json:"fileName"`
}

type feedbackRequest struct {
	Feedback  *string `json:"feedback"`
	AudioData *string `json:"audioData"`
	FileName  *string `json:"fileName"`
}

// handleCreateRecording stores a single uploaded recording as a COMPLETED
// session.
func (s *Server) handleCreateRecording(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)
	var req recordingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		writeError(w, http.StatusBadRequest, "missing_title")
		return
	case req.Duration < 1:
		writeError(w, http.StatusBadRequest, "invalid_duration")
		return
	case strings.TrimSpace(req.AudioData) == "":
		writeError(w, http.StatusBadRequest, "missing_audio")
		return
	}
	audio, err := s.decodeUpload(req.AudioData, req.FileName)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	now := s.now().UTC()
	duration := req.Duration
	size := int64(len(audio.data))
	session := model.PracticeSession{
		ID:            uuid.NewString(),
		StudentID:     callerFrom(r).ID,
		Title:         title,
		Description:   trimmed(req.Description),
		Date:          now,
		CreatedAt:     now,
		TotalDuration: &duration,
		Status:        model.SessionCompleted,
		AudioSize:     &size,
	}
	ref, err := s.blobs.Put(r.Context(), blob.SessionRecordingKey(session.StudentID, session.ID, audio.ext), audio.data, audio.contentType)
	if err != nil {
		s.serverError(w, r, err, "store recording")
		return
	}
	session.AudioURL = &ref
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.deleteBlobs(r, []string{ref})
		s.serverError(w, r, err, "create session")
		return
	}
	session.Segments = []model.PracticeSegment{}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": mapSession(session)})
}

// handleListSessions lists the caller's own sessions for a student, one
// supervised student's sessions for a teacher naming studentId, or the most
// recent sessions across a teacher's roster.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	requested := strings.TrimSpace(r.URL.Query().Get("studentId"))
	filter := db.SessionFilter{WithDetails: true}

	var (
		sessions []model.PracticeSession
		err      error
	)
	switch caller.Role {
	case model.RoleStudent:
		if requested != "" && requested != caller.ID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		sessions, err = s.store.ListSessionsByStudent(r.Context(), caller.ID, filter)
	case model.RoleTeacher:
		if requested != "" {
			student, ok := s.loadRosterStudent(w, r, requested)
			if !ok {
				return
			}
			sessions, err = s.store.ListSessionsByStudent(r.Context(), student.ID, filter)
			break
		}
		filter.Limit = rosterFeedSize
		sessions, err = s.store.ListRosterSessions(r.Context(), caller.ID, filter)
	default:
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		s.serverError(w, r, err, "list sessions")
		return
	}

	views := mapSessions(sessions)
	if caller.Role == model.RoleTeacher {
		views, err = s.withStudents(r, caller.ID, sessions)
		if err != nil {
			s.serverError(w, r, err, "list students")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, owner, ok := s.loadSessionFor(w, r, access.Read, true)
	if !ok {
		return
	}
	view := mapSession(session)
	view.Student = &studentRef{ID: owner.ID, Name: owner.Name, Email: owner.Email}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": view})
}

// handleDeleteSession is open to the owning student and the supervising
// teacher. Stored audio is removed after the rows.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSessionFor(w, r, access.Read, true)
	if !ok {
		return
	}
	if err := s.store.DeleteSession(r.Context(), session.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found")
			return
		}
		s.serverError(w, r, err, "delete session")
		return
	}
	s.deleteBlobs(r, audioRefs(session))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSessionAudio(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSessionFor(w, r, access.Read, false)
	if !ok {
		return
	}
	if session.AudioURL == nil || *session.AudioURL == "" {
		writeError(w, http.StatusNotFound, "audio_not_found")
		return
	}
	s.streamAudio(w, r, *session.AudioURL)
}

func (s *Server) handleSegmentAudio(w http.ResponseWriter, r *http.Request) {
	segment, _, ok := s.loadSegmentFor(w, r, access.Read)
	if !ok {
		return
	}
	if segment.AudioURL == "" {
		writeError(w, http.StatusNotFound, "audio_not_found")
		return
	}
	s.streamAudio(w, r, segment.AudioURL)
}

// feedbackUpdate is the merged feedback to persist. replaced is the earlier
// audio it supersedes; stored is audio written for it under a new reference.
type feedbackUpdate struct {
	text     *string
	audio    *string
	replaced string
	stored   string
}

// readFeedback merges a feedback body into the current values, storing any
// audio under targetID. Fields left out are kept. Nothing stored is deleted
// until finishFeedback learns whether the row was updated.
func (s *Server) readFeedback(w http.ResponseWriter, r *http.Request, req feedbackRequest, targetID string, text, audio *string) (feedbackUpdate, bool) {
	update := feedbackUpdate{text: text, audio: audio}
	newText := trimmed(req.Feedback)
	payload := trimmed(req.AudioData)
	if newText == nil && payload == nil {
		writeError(w, http.StatusBadRequest, "missing_feedback")
		return update, false
	}
	if newText != nil {
		update.text = newText
	}
	if payload != nil {
		fileName := ""
		if req.FileName != nil {
			fileName = *req.FileName
		}
		decoded, err := s.decodeUpload(*payload, fileName)
		if err != nil {
			writeDecodeError(w, err)
			return update, false
		}
		ref, err := s.blobs.Put(r.Context(), blob.FeedbackKey(targetID, decoded.ext), decoded.data, decoded.contentType)
		if err != nil {
			s.serverError(w, r, err, "store feedback audio")
			return update, false
		}
		if audio == nil || *audio != ref {
			update.stored = ref
			if audio != nil && *audio != "" {
				update.replaced = *audio
			}
		}
		update.audio = &ref
	}
	return update, true
}

// finishFeedback removes the audio no row references after the update: the
// superseded blob on success, the new blob on failure.
func (s *Server) finishFeedback(r *http.Request, update feedbackUpdate, err error) {
	switch {
	case err == nil && update.replaced != "":
		s.deleteBlobs(r, []string{update.replaced})
	case err != nil && update.stored != "":
		s.deleteBlobs(r, []string{update.stored})
	}
}

func (s *Server) handleSessionFeedback(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	session, _, ok := s.loadSessionFor(w, r, access.WriteAsSupervisor, false)
	if !ok {
		return
	}
	update, ok := s.readFeedback(w, r, req, session.ID, session.TeacherFeedback, session.TeacherFeedbackAudio)
	if !ok {
		return
	}
	err := s.store.SetSessionFeedback(r.Context(), session.ID, update.text, update.audio, s.now().UTC())
	s.finishFeedback(r, update, err)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}
	if err != nil {
		s.serverError(w, r, err, "save session feedback")
		return
	}
	detail, err := s.store.GetSessionDetail(r.Context(), session.ID)
	if err != nil {
		s.serverError(w, r, err, "load session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": mapSession(detail)})
}

func (s *Server) handleSegmentFeedback(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	segment, _, ok := s.loadSegmentFor(w, r, access.WriteAsSupervisor)
	if !ok {
		return
	}
	update, ok := s.readFeedback(w, r, req, segment.ID, segment.TeacherFeedbackText, segment.TeacherFeedbackAudio)
	if !ok {
		return
	}
	now := s.now().UTC()
	err := s.store.SetSegmentFeedback(r.Context(), segment.ID, update.text, update.audio, now)
	s.finishFeedback(r, update, err)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "segment_not_found")
		return
	}
	if err != nil {
		s.serverError(w, r, err, "save segment feedback")
		return
	}
	segment.TeacherFeedbackText = update.text
	segment.TeacherFeedbackAudio = update.audio
	segment.TeacherFeedbackAt = &now
	writeJSON(w, http.StatusOK, map[string]interface{}{"segment": mapSegment(segment)})
}
