package model

import "time"

type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
)

type SegmentType string

const (
	SegmentPiece        SegmentType = "PIECE"
	SegmentWarmup       SegmentType = "WARMUP"
	SegmentTechnique    SegmentType = "TECHNIQUE"
	SegmentSightReading SegmentType = "SIGHTREADING"
	SegmentOther        SegmentType = "OTHER"
)

func (t SegmentType) Valid() bool {
	switch t {
	case SegmentPiece, SegmentWarmup, SegmentTechnique, SegmentSightReading, SegmentOther:
		return true
	}
	return false
}

// Account is a teacher or a student. A student with an empty PasswordHash
// is a pending invite.
type Account struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	Role            Role
	TeacherID       *string
	InviteToken     *string
	InviteExpiresAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Account) Pending() bool {
	return a.Role == RoleStudent && a.PasswordHash == ""
}

type PracticeSession struct {
	ID                   string
	StudentID            string
	Title                string
	Description          *string
	Date                 time.Time
	CreatedAt            time.Time
	TotalDuration        *int
	Status               SessionStatus
	AudioURL             *string
	AudioSize            *int64
	TeacherFeedback      *string
	TeacherFeedbackAudio *string
	TeacherFeedbackAt    *time.Time
	Segments             []PracticeSegment
	Analysis             *Analysis
}

type PracticeSegment struct {
	ID                   string
	SessionID            string
	PieceID              *string
	Title                string
	Type                 SegmentType
	Notes                *string
	AudioURL             string
	Duration             int
	MetronomeBPM         *int
	ReferenceVideoURL    *string
	RecordedAt           time.Time
	TeacherFeedbackText  *string
	TeacherFeedbackAudio *string
	TeacherFeedbackAt    *time.Time
	Analysis             *Analysis
}

type Piece struct {
	ID                       string
	StudentID                string
	Name                     string
	Composer                 *string
	Difficulty               *string
	TargetBPM                *int
	DefaultReferenceVideoURL *string
	Notes                    *string
	DateStarted              time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Analysis belongs to exactly one of a session or a segment.
type Analysis struct {
	ID        string
	SessionID *string
	SegmentID *string
	Result    AnalysisResult
	CreatedAt time.Time
}

type AnalysisResult struct {
	OverallFeedback     string         `json:"overallFeedback"`
	PiecesIdentified    []PieceMention `json:"piecesIdentified"`
	TimeBreakdown       TimeBreakdown  `json:"timeBreakdown"`
	Suggestions         []Suggestion   `json:"suggestions"`
	Strengths           []string       `json:"strengths"`
	AreasForImprovement []string       `json:"areasForImprovement"`
	OverallScore        int            `json:"overallScore"`
	Fallback            bool           `json:"fallback"`
}

type PieceMention struct {
	Name      string `json:"name"`
	Composer  string `json:"composer,omitempty"`
	Duration  int    `json:"duration"`
	TimeSpent string `json:"timeSpent"`
}

type TimeBreakdown struct {
	Warmup       *int `json:"warmup,omitempty"`
	Technique    *int `json:"technique,omitempty"`
	Scales       *int `json:"scales,omitempty"`
	Repertoire   *int `json:"repertoire,omitempty"`
	SightReading *int `json:"sightReading,omitempty"`
	Other        *int `json:"other,omitempty"`
}

type Suggestion struct {
	Timestamp  string `json:"timestamp,omitempty"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority"`
}
