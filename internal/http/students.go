package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cadence/practice/internal/access"
	"cadence/practice/internal/crypto"
	"cadence/practice/internal/db"
	"cadence/practice/internal/model"
	"cadence/practice/internal/stats"
)

const teacherFeedSize = 20

type inviteRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type inviteResponse struct {
	Student     studentRef `json:"student"`
	InviteURL   string     `json:"inviteUrl"`
	InviteToken string     `json:"inviteToken"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

type acceptInviteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.store.ListStudents(r.Context(), callerFrom(r).ID)
	if err != nil {
		s.serverError(w, r, err, "list students")
		return
	}
	out := make([]studentView, 0, len(students))
	for _, student := range students {
		out = append(out, mapStudent(student))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"students": out})
}

func (s *Server) handleInviteStudent(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if !validEmail(email) {
		writeError(w, http.StatusBadRequest, "invalid_email")
		return
	}
	if len([]rune(name)) < minNameLength {
		writeError(w, http.StatusBadRequest, "invalid_name")
		return
	}

	token, err := crypto.NewInviteToken()
	if err != nil {
		s.serverError(w, r, err, "generate invite token")
		return
	}
	teacherID := callerFrom(r).ID
	now := s.now().UTC()
	expires := now.Add(s.cfg.InviteTTL)
	student := model.Account{
		ID:              uuid.NewString(),
		Email:           email,
		Name:            name,
		Role:            model.RoleStudent,
		TeacherID:       &teacherID,
		InviteToken:     &token,
		InviteExpiresAt: &expires,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateAccount(r.Context(), student); err != nil {
		if errors.Is(err, db.ErrConflict) {
			writeError(w, http.StatusConflict, "email_taken")
			return
		}
		s.serverError(w, r, err, "create invite")
		return
	}

	writeJSON(w, http.StatusCreated, inviteResponse{
		Student:     studentRef{ID: student.ID, Name: student.Name, Email: student.Email},
		InviteURL:   s.cfg.AppURL + "/invite/" + token,
		InviteToken: token,
		ExpiresAt:   expires,
	})
}

// lookupInvite resolves an invite token to its pending account, answering
// the client itself when the invite is unknown, used or expired.
func (s *Server) lookupInvite(w http.ResponseWriter, r *http.Request, token string) (model.Account, bool) {
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing_token")
		return model.Account{}, false
	}
	account, err := s.store.GetAccountByInviteToken(r.Context(), token)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "invite_not_found")
		return account, false
	}
	if err != nil {
		s.serverError(w, r, err, "load invite")
		return account, false
	}
	if !account.Pending() {
		writeError(w, http.StatusConflict, "invite_already_accepted")
		return account, false
	}
	if account.InviteExpiresAt != nil && account.InviteExpiresAt.Before(s.now()) {
		writeError(w, http.StatusGone, "invite_expired")
		return account, false
	}
	return account, true
}

func (s *Server) handleInviteInfo(w http.ResponseWriter, r *http.Request) {
	account, ok := s.lookupInvite(w, r, strings.TrimSpace(r.URL.Query().Get("token")))
	if !ok {
		return
	}
	resp := map[string]string{"name": account.Name, "email": account.Email}
	if account.TeacherID != nil {
		teacher, err := s.store.GetAccountByID(r.Context(), *account.TeacherID)
		if err == nil {
			resp["teacherName"] = teacher.Name
		} else if !errors.Is(err, db.ErrNotFound) {
			s.serverError(w, r, err, "load inviting teacher")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	}
	account, ok := s.lookupInvite(w, r, strings.TrimSpace(req.Token))
	if !ok {
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.serverError(w, r, err, "hash password")
		return
	}
	if err := s.store.AcceptInvite(r.Context(), account.ID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusConflict, "invite_already_accepted")
			return
		}
		s.serverError(w, r, err, "accept invite")
		return
	}
	account.PasswordHash = hash
	account.InviteToken = nil
	account.InviteExpiresAt = nil

	s.respondWithToken(w, r, http.StatusOK, account)
}

// loadRosterStudent fetches a student and checks the caller supervises it.
func (s *Server) loadRosterStudent(w http.ResponseWriter, r *http.Request, studentID string) (model.Account, bool) {
	student, err := s.store.GetAccountByID(r.Context(), studentID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "student_not_found")
		return student, false
	}
	if err != nil {
		s.serverError(w, r, err, "load student")
		return student, false
	}
	if !access.CanMutateStudentRoster(callerFrom(r), student) {
		writeError(w, http.StatusForbidden, "forbidden")
		return student, false
	}
	return student, true
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	student, ok := s.loadRosterStudent(w, r, chi.URLParam(r, "studentId"))
	if !ok {
		return
	}

	sessions, err := s.store.ListSessionsByStudent(r.Context(), student.ID, db.SessionFilter{WithDetails: true})
	if err != nil {
		s.serverError(w, r, err, "list student sessions")
		return
	}
	if err := s.store.DeleteStudent(r.Context(), student.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		s.serverError(w, r, err, "delete student")
		return
	}
	for _, session := range sessions {
		s.deleteBlobs(r, audioRefs(session))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleStudentStats counts COMPLETED sessions placed by their Date, and
// counts analysed segments rather than analysed sessions.
func (s *Server) handleStudentStats(w http.ResponseWriter, r *http.Request) {
	student, ok := s.loadRosterStudent(w, r, chi.URLParam(r, "studentId"))
	if !ok {
		return
	}
	sessions, err := s.store.ListSessionsByStudent(r.Context(), student.ID, db.SessionFilter{
		Status:      model.SessionCompleted,
		WithDetails: true,
	})
	if err != nil {
		s.serverError(w, r, err, "list student sessions")
		return
	}

	summary := stats.Aggregate(sessions, stats.Options{
		Now:         s.now(),
		Location:    s.location,
		Timestamp:   stats.ByDate,
		Granularity: stats.PerSegment,
	})
	writeJSON(w, http.StatusOK, statsResponse{
		Student:  studentRef{ID: student.ID, Name: student.Name, Email: student.Email},
		Stats:    summary,
		Sessions: mapSessions(sessions),
	})
}

// handleStreak counts every session, ACTIVE ones included. Students see their
// own streak; teachers must name a student on their roster.
func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	requested := strings.TrimSpace(r.URL.Query().Get("studentId"))

	var studentID string
	switch caller.Role {
	case model.RoleStudent:
		if requested != "" && requested != caller.ID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		studentID = caller.ID
	case model.RoleTeacher:
		if requested == "" {
			writeError(w, http.StatusBadRequest, "missing_student_id")
			return
		}
		student, ok := s.loadRosterStudent(w, r, requested)
		if !ok {
			return
		}
		studentID = student.ID
	default:
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	sessions, err := s.store.ListSessionsByStudent(r.Context(), studentID, db.SessionFilter{})
	if err != nil {
		s.serverError(w, r, err, "list sessions")
		return
	}
	dates := make([]time.Time, 0, len(sessions))
	for _, session := range sessions {
		dates = append(dates, session.Date)
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"streak":        stats.Streak(dates, s.now(), s.location),
		"totalSessions": len(sessions),
	})
}

func (s *Server) handleTeacherSessions(w http.ResponseWriter, r *http.Request) {
	teacherID := callerFrom(r).ID
	sessions, err := s.store.ListRosterSessions(r.Context(), teacherID, db.SessionFilter{
		Status:      model.SessionCompleted,
		Limit:       teacherFeedSize,
		WithDetails: true,
	})
	if err != nil {
		s.serverError(w, r, err, "list roster sessions")
		return
	}
	views, err := s.withStudents(r, teacherID, sessions)
	if err != nil {
		s.serverError(w, r, err, "list students")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

// withStudents maps sessions and attaches the student each belongs to.
func (s *Server) withStudents(r *http.Request, teacherID string, sessions []model.PracticeSession) ([]sessionView, error) {
	views := mapSessions(sessions)
	if len(views) == 0 {
		return views, nil
	}
	students, err := s.store.ListStudents(r.Context(), teacherID)
	if err != nil {
		return nil, err
	}
	refs := make(map[string]studentRef, len(students))
	for _, student := range students {
		refs[student.ID] = studentRef{ID: student.ID, Name: student.Name, Email: student.Email}
	}
	for i := range views {
		if ref, ok := refs[views[i].StudentID]; ok {
			ref := ref
			views[i].Student = &ref
		}
	}
	return views, nil
}
