package db

import (
	"context"
	"time"

	"cadence/practice/internal/model"
)

const sessionColumns = "id, student_id, title, description, date, created_at, total_duration, status, audio_url, audio_size, teacher_feedback, teacher_feedback_audio, teacher_feedback_at"

// SessionFilter narrows session listings. Zero values mean no restriction.
type SessionFilter struct {
	Status model.SessionStatus
	Limit  int
	// WithDetails loads segments and analyses for every returned session.
	WithDetails bool
}

func scanSession(row rowScanner) (model.PracticeSession, error) {
	var (
		ps              model.PracticeSession
		status          string
		date, createdAt timeValue
		feedbackAt      timeValue
	)
	err := row.Scan(
		&ps.ID,
		&ps.StudentID,
		&ps.Title,
		&ps.Description,
		&date,
		&createdAt,
		&ps.TotalDuration,
		&status,
		&ps.AudioURL,
		&ps.AudioSize,
		&ps.TeacherFeedback,
		&ps.TeacherFeedbackAudio,
		&feedbackAt,
	)
	if err != nil {
		return ps, mapError(err)
	}
	ps.Status = model.SessionStatus(status)
	ps.Date = date.Time
	ps.CreatedAt = createdAt.Time
	ps.TeacherFeedbackAt = feedbackAt.ptr()
	return ps, nil
}

func (s *Store) CreateSession(ctx context.Context, ps model.PracticeSession) error {
	_, err := s.exec(ctx, `
		INSERT INTO practice_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ps.ID, ps.StudentID, ps.Title, ps.Description, s.timeArg(ps.Date), s.timeArg(ps.CreatedAt),
		ps.TotalDuration, string(ps.Status), ps.AudioURL, ps.AudioSize, ps.TeacherFeedback,
		ps.TeacherFeedbackAudio, s.nullTimeArg(ps.TeacherFeedbackAt))
	return err
}

// GetSession loads the session row only.
func (s *Store) GetSession(ctx context.Context, id string) (model.PracticeSession, error) {
	return scanSession(s.queryRow(ctx, `SELECT `+sessionColumns+` FROM practice_sessions WHERE id = ?`, id))
}

// GetSessionDetail loads the session with its segments, ordered by recording
// time, and every analysis attached to either.
func (s *Store) GetSessionDetail(ctx context.Context, id string) (model.PracticeSession, error) {
	ps, err := s.GetSession(ctx, id)
	if err != nil {
		return ps, err
	}
	sessions := []model.PracticeSession{ps}
	if err := s.attachDetails(ctx, sessions); err != nil {
		return ps, err
	}
	return sessions[0], nil
}

// GetActiveSession returns the most recent ACTIVE session of a student.
func (s *Store) GetActiveSession(ctx context.Context, studentID string) (model.PracticeSession, error) {
	return scanSession(s.queryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM practice_sessions
		WHERE student_id = ? AND status = 'ACTIVE'
		ORDER BY date DESC
		LIMIT 1
	`, studentID))
}

func (s *Store) ListSessionsByStudent(ctx context.Context, studentID string, filter SessionFilter) ([]model.PracticeSession, error) {
	return s.listSessions(ctx, []string{studentID}, filter)
}

// ListRosterSessions lists the sessions of every student of teacherID, most
// recent first.
func (s *Store) ListRosterSessions(ctx context.Context, teacherID string, filter SessionFilter) ([]model.PracticeSession, error) {
	ids, err := s.ListRosterIDs(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.listSessions(ctx, ids, filter)
}

func (s *Store) listSessions(ctx context.Context, studentIDs []string, filter SessionFilter) ([]model.PracticeSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM practice_sessions WHERE student_id IN (` + placeholders(len(studentIDs)) + `)`
	args := stringArgs(studentIDs)
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY date DESC, created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var sessions []model.PracticeSession
	for rows.Next() {
		ps, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, ps)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if filter.WithDetails && len(sessions) > 0 {
		if err := s.attachDetails(ctx, sessions); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// attachDetails fills Segments and Analysis in place. Rows are drained before
// each follow-up query so a single-connection pool never blocks.
func (s *Store) attachDetails(ctx context.Context, sessions []model.PracticeSession) error {
	sessionIDs := make([]string, len(sessions))
	index := make(map[string]int, len(sessions))
	for i, ps := range sessions {
		sessionIDs[i] = ps.ID
		index[ps.ID] = i
		sessions[i].Segments = []model.PracticeSegment{}
	}

	segments, err := s.listSegments(ctx, sessionIDs)
	if err != nil {
		return err
	}
	segmentIDs := make([]string, 0, len(segments))
	for _, seg := range segments {
		segmentIDs = append(segmentIDs, seg.ID)
	}

	sessionAnalyses, err := s.analysesBy(ctx, "session_id", sessionIDs)
	if err != nil {
		return err
	}
	segmentAnalyses, err := s.analysesBy(ctx, "segment_id", segmentIDs)
	if err != nil {
		return err
	}

	for _, seg := range segments {
		if a, ok := segmentAnalyses[seg.ID]; ok {
			seg.Analysis = a
		}
		i := index[seg.SessionID]
		sessions[i].Segments = append(sessions[i].Segments, seg)
	}
	for id, a := range sessionAnalyses {
		sessions[index[id]].Analysis = a
	}
	return nil
}

// CompleteSession marks a session COMPLETED and stores the sum of its segment
// durations as the total.
func (s *Store) CompleteSession(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `
		UPDATE practice_sessions
		SET status = 'COMPLETED',
		    total_duration = (SELECT COALESCE(SUM(duration), 0) FROM practice_segments WHERE session_id = ?)
		WHERE id = ?
	`, id, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// AddSessionDuration increments the running total in one statement.
func (s *Store) AddSessionDuration(ctx context.Context, id string, seconds int) error {
	res, err := s.exec(ctx, `
		UPDATE practice_sessions
		SET total_duration = COALESCE(total_duration, 0) + ?
		WHERE id = ?
	`, seconds, id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) SetSessionFeedback(ctx context.Context, id string, text, audioURL *string, at time.Time) error {
	res, err := s.exec(ctx, `
		UPDATE practice_sessions
		SET teacher_feedback = ?, teacher_feedback_audio = ?, teacher_feedback_at = ?
		WHERE id = ?
	`, text, audioURL, s.timeArg(at), id)
	if err != nil {
		return err
	}
	return affected(res)
}

// DeleteSession removes a session, its segments and their analyses.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, `DELETE FROM analyses WHERE segment_id IN (SELECT id FROM practice_segments WHERE session_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.exec(ctx, `DELETE FROM analyses WHERE session_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.exec(ctx, `DELETE FROM practice_segments WHERE session_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.exec(ctx, `DELETE FROM practice_sessions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return affected(res)
	})
}

// CloseStaleSessions completes every ACTIVE session dated before cutoff.
func (s *Store) CloseStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `
		UPDATE practice_sessions
		SET status = 'COMPLETED',
		    total_duration = (
		        SELECT COALESCE(SUM(seg.duration), 0)
		        FROM practice_segments seg
		        WHERE seg.session_id = practice_sessions.id
		    )
		WHERE status = 'ACTIVE' AND date < ?
	`, s.timeArg(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
