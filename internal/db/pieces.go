package db

import (
	"context"

	"cadence/practice/internal/model"
)

const pieceColumns = "id, student_id, name, composer, difficulty, target_bpm, default_reference_video_url, notes, date_started, created_at, updated_at"

func scanPiece(row rowScanner) (model.Piece, error) {
	var (
		p                  model.Piece
		started, createdAt timeValue
		updatedAt          timeValue
	)
	err := row.Scan(
		&p.ID,
		&p.StudentID,
		&p.Name,
		&p.Composer,
		&p.Difficulty,
		&p.TargetBPM,
		&p.DefaultReferenceVideoURL,
		&p.Notes,
		&started,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return p, mapError(err)
	}
	p.DateStarted = started.Time
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return p, nil
}

func (s *Store) CreatePiece(ctx context.Context, p model.Piece) error {
	_, err := s.exec(ctx, `
		INSERT INTO pieces (`+pieceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.StudentID, p.Name, p.Composer, p.Difficulty, p.TargetBPM, p.DefaultReferenceVideoURL,
		p.Notes, s.timeArg(p.DateStarted), s.timeArg(p.CreatedAt), s.timeArg(p.UpdatedAt))
	return err
}

func (s *Store) GetPiece(ctx context.Context, id string) (model.Piece, error) {
	return scanPiece(s.queryRow(ctx, `SELECT `+pieceColumns+` FROM pieces WHERE id = ?`, id))
}

func (s *Store) ListPieces(ctx context.Context, studentID string) ([]model.Piece, error) {
	rows, err := s.query(ctx, `
		SELECT `+pieceColumns+`
		FROM pieces
		WHERE student_id = ?
		ORDER BY updated_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Piece{}
	for rows.Next() {
		p, err := scanPiece(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePiece(ctx context.Context, p model.Piece) error {
	res, err := s.exec(ctx, `
		UPDATE pieces
		SET name = ?, composer = ?, difficulty = ?, target_bpm = ?, default_reference_video_url = ?,
		    notes = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Composer, p.Difficulty, p.TargetBPM, p.DefaultReferenceVideoURL, p.Notes,
		s.timeArg(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

// DeletePiece removes a piece; segments that referenced it keep their audio
// and lose the link.
func (s *Store) DeletePiece(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, `UPDATE practice_segments SET piece_id = NULL WHERE piece_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.exec(ctx, `DELETE FROM pieces WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return affected(res)
	})
}
