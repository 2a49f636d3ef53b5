package http

import (
	"time"

	"cadence/practice/internal/db"
	"cadence/practice/internal/model"
	"cadence/practice/internal/stats"
)

type accountView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	TeacherID *string   `json:"teacherId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  accountView `json:"user"`
}

type studentView struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	CreatedAt       time.Time  `json:"createdAt"`
	SessionCount    int        `json:"sessionCount"`
	Pending         bool       `json:"pending"`
	InviteExpiresAt *time.Time `json:"inviteExpiresAt,omitempty"`
}

type studentRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type analysisView struct {
	ID        string    `json:"id"`
	SessionID *string   `json:"sessionId,omitempty"`
	SegmentID *string   `json:"segmentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	model.AnalysisResult
}

type segmentView struct {
	ID                   string        `json:"id"`
	SessionID            string        `json:"sessionId"`
	PieceID              *string       `json:"pieceId"`
	Title                string        `json:"title"`
	Type                 string        `json:"type"`
	Notes                *string       `json:"notes"`
	AudioURL             string        `json:"audioUrl"`
	Duration             int           `json:"duration"`
	MetronomeBPM         *int          `json:"metronomeBPM"`
	ReferenceVideoURL    *string       `json:"referenceVideoUrl"`
	RecordedAt           time.Time     `json:"recordedAt"`
	TeacherFeedbackText  *string       `json:"teacherFeedbackText"`
	TeacherFeedbackAudio *string       `json:"teacherFeedbackAudio"`
	TeacherFeedbackAt    *time.Time    `json:"teacherFeedbackAt"`
	Analysis             *analysisView `json:"analysis"`
}

type sessionView struct {
	ID                   string        `json:"id"`
	StudentID            string        `json:"studentId"`
	Student              *studentRef   `json:"student,omitempty"`
	Title                string        `json:"title"`
	Description          *string       `json:"description"`
	Date                 time.Time     `json:"date"`
	CreatedAt            time.Time     `json:"createdAt"`
	TotalDuration        int           `json:"totalDuration"`
	Status               string        `json:"status"`
	AudioURL             *string       `json:"audioUrl"`
	AudioSize            *int64        `json:"audioSize"`
	TeacherFeedback      *string       `json:"teacherFeedback"`
	TeacherFeedbackAudio *string       `json:"teacherFeedbackAudio"`
	TeacherFeedbackAt    *time.Time    `json:"teacherFeedbackAt"`
	Segments             []segmentView `json:"segments"`
	Analysis             *analysisView `json:"analysis"`
}

type pieceView struct {
	ID                       string    `json:"id"`
	StudentID                string    `json:"studentId"`
	Name                     string    `json:"name"`
	Composer                 *string   `json:"composer"`
	Difficulty               *string   `json:"difficulty"`
	TargetBPM                *int      `json:"targetBPM"`
	DefaultReferenceVideoURL *string   `json:"defaultReferenceVideoUrl"`
	Notes                    *string   `json:"notes"`
	DateStarted              time.Time `json:"dateStarted"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

type statsResponse struct {
	Student  studentRef    `json:"student"`
	Stats    stats.Stats   `json:"stats"`
	Sessions []sessionView `json:"sessions"`
}

func mapAccount(a model.Account) accountView {
	return accountView{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Role:      string(a.Role),
		TeacherID: a.TeacherID,
		CreatedAt: a.CreatedAt,
	}
}

func mapStudent(s db.StudentSummary) studentView {
	view := studentView{
		ID:           s.ID,
		Email:        s.Email,
		Name:         s.Name,
		CreatedAt:    s.CreatedAt,
		SessionCount: s.SessionCount,
		Pending:      s.Pending(),
	}
	if view.Pending {
		view.InviteExpiresAt = s.InviteExpiresAt
	}
	return view
}

func mapAnalysis(a *model.Analysis) *analysisView {
	if a == nil {
		return nil
	}
	return &analysisView{
		ID:             a.ID,
		SessionID:      a.SessionID,
		SegmentID:      a.SegmentID,
		CreatedAt:      a.CreatedAt,
		AnalysisResult: a.Result,
	}
}

func mapSegment(seg model.PracticeSegment) segmentView {
	return segmentView{
		ID:                   seg.ID,
		SessionID:            seg.SessionID,
		PieceID:              seg.PieceID,
		Title:                seg.Title,
		Type:                 string(seg.Type),
		Notes:                seg.Notes,
		AudioURL:             seg.AudioURL,
		Duration:             seg.Duration,
		MetronomeBPM:         seg.MetronomeBPM,
		ReferenceVideoURL:    seg.ReferenceVideoURL,
		RecordedAt:           seg.RecordedAt,
		TeacherFeedbackText:  seg.TeacherFeedbackText,
		TeacherFeedbackAudio: seg.TeacherFeedbackAudio,
		TeacherFeedbackAt:    seg.TeacherFeedbackAt,
		Analysis:             mapAnalysis(seg.Analysis),
	}
}

// mapSession reports the effective duration, so an ACTIVE session shows the
// running total of its segments.
func mapSession(ps model.PracticeSession) sessionView {
	segments := make([]segmentView, 0, len(ps.Segments))
	for _, seg := range ps.Segments {
		segments = append(segments, mapSegment(seg))
	}
	return sessionView{
		ID:                   ps.ID,
		StudentID:            ps.StudentID,
		Title:                ps.Title,
		Description:          ps.Description,
		Date:                 ps.Date,
		CreatedAt:            ps.CreatedAt,
		TotalDuration:        stats.EffectiveDuration(ps),
		Status:               string(ps.Status),
		AudioURL:             ps.AudioURL,
		AudioSize:            ps.AudioSize,
		TeacherFeedback:      ps.TeacherFeedback,
		TeacherFeedbackAudio: ps.TeacherFeedbackAudio,
		TeacherFeedbackAt:    ps.TeacherFeedbackAt,
		Segments:             segments,
		Analysis:             mapAnalysis(ps.Analysis),
	}
}

func mapSessions(sessions []model.PracticeSession) []sessionView {
	out := make([]sessionView, 0, len(sessions))
	for _, ps := range sessions {
		out = append(out, mapSession(ps))
	}
	return out
}

func mapPiece(p model.Piece) pieceView {
	return pieceView{
		ID:                       p.ID,
		StudentID:                p.StudentID,
		Name:                     p.Name,
		Composer:                 p.Composer,
		Difficulty:               p.Difficulty,
		TargetBPM:                p.TargetBPM,
		DefaultReferenceVideoURL: p.DefaultReferenceVideoURL,
		Notes:                    p.Notes,
		DateStarted:              p.DateStarted,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}
}
