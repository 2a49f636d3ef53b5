package db

import (
	"context"
	"time"

	"cadence/practice/internal/model"
)

const accountColumns = "id, email, name, password_hash, role, teacher_id, invite_token, invite_expires_at, created_at, updated_at"

// StudentSummary is a roster row.
type StudentSummary struct {
	model.Account
	SessionCount int
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		a                  model.Account
		role               string
		expires, createdAt timeValue
		updatedAt          timeValue
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.PasswordHash,
		&role,
		&a.TeacherID,
		&a.InviteToken,
		&expires,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return a, mapError(err)
	}
	a.Role = model.Role(role)
	a.InviteExpiresAt = expires.ptr()
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a model.Account) error {
	_, err := s.exec(ctx, `
		INSERT INTO users (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Email, a.Name, a.PasswordHash, string(a.Role), a.TeacherID, a.InviteToken,
		s.nullTimeArg(a.InviteExpiresAt), s.timeArg(a.CreatedAt), s.timeArg(a.UpdatedAt))
	return err
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (model.Account, error) {
	return scanAccount(s.queryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	return scanAccount(s.queryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE email = ?`, email))
}

func (s *Store) GetAccountByInviteToken(ctx context.Context, token string) (model.Account, error) {
	return scanAccount(s.queryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE invite_token = ?`, token))
}

// AcceptInvite sets the password of a pending student and consumes its token.
func (s *Store) AcceptInvite(ctx context.Context, id, passwordHash string, now time.Time) error {
	res, err := s.exec(ctx, `
		UPDATE users
		SET password_hash = ?, invite_token = NULL, invite_expires_at = NULL, updated_at = ?
		WHERE id = ? AND password_hash = ''
	`, passwordHash, s.timeArg(now), id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *Store) ListStudents(ctx context.Context, teacherID string) ([]StudentSummary, error) {
	rows, err := s.query(ctx, `
		SELECT u.id, u.email, u.name, u.password_hash, u.role, u.teacher_id, u.invite_token,
		       u.invite_expires_at, u.created_at, u.updated_at,
		       (SELECT COUNT(*) FROM practice_sessions ps WHERE ps.student_id = u.id)
		FROM users u
		WHERE u.teacher_id = ? AND u.role = 'STUDENT'
		ORDER BY u.created_at DESC
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudentSummary
	for rows.Next() {
		var (
			summary            StudentSummary
			role               string
			expires, createdAt timeValue
			updatedAt          timeValue
			count              int64
		)
		if err := rows.Scan(
			&summary.ID,
			&summary.Email,
			&summary.Name,
			&summary.PasswordHash,
			&role,
			&summary.TeacherID,
			&summary.InviteToken,
			&expires,
			&createdAt,
			&updatedAt,
			&count,
		); err != nil {
			return nil, err
		}
		summary.Role = model.Role(role)
		summary.InviteExpiresAt = expires.ptr()
		summary.CreatedAt = createdAt.Time
		summary.UpdatedAt = updatedAt.Time
		summary.SessionCount = int(count)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// ListRosterIDs returns the ids of every student of teacherID.
func (s *Store) ListRosterIDs(ctx context.Context, teacherID string) ([]string, error) {
	rows, err := s.query(ctx, `SELECT id FROM users WHERE teacher_id = ? AND role = 'STUDENT'`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteStudent removes a student together with its sessions, segments,
// analyses and pieces.
func (s *Store) DeleteStudent(ctx context.Context, studentID string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		steps := []string{
			`DELETE FROM analyses WHERE segment_id IN (
				SELECT seg.id FROM practice_segments seg
				JOIN practice_sessions ps ON ps.id = seg.session_id
				WHERE ps.student_id = ?)`,
			`DELETE FROM analyses WHERE session_id IN (SELECT id FROM practice_sessions WHERE student_id = ?)`,
			`DELETE FROM practice_segments WHERE session_id IN (SELECT id FROM practice_sessions WHERE student_id = ?)`,
			`DELETE FROM practice_sessions WHERE student_id = ?`,
			`DELETE FROM pieces WHERE student_id = ?`,
		}
		for _, step := range steps {
			if _, err := tx.exec(ctx, step, studentID); err != nil {
				return err
			}
		}
		res, err := tx.exec(ctx, `DELETE FROM users WHERE id = ? AND role = 'STUDENT'`, studentID)
		if err != nil {
			return err
		}
		return affected(res)
	})
}

// DeleteExpiredInvites removes pending students whose invite lapsed before
// now, freeing their email for a new invite.
func (s *Store) DeleteExpiredInvites(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx, `
		DELETE FROM users
		WHERE role = 'STUDENT' AND password_hash = ''
		  AND invite_expires_at IS NOT NULL AND invite_expires_at < ?
	`, s.timeArg(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
