package db

import (
	"context"
	"time"

	"cadence/practice/internal/model"
)

const segmentColumns = "id, session_id, piece_id, title, type, notes, audio_url, duration, metronome_bpm, reference_video_url, recorded_at, teacher_feedback_text, teacher_feedback_audio, teacher_feedback_at"

func scanSegment(row rowScanner) (model.PracticeSegment, error) {
	var (
		seg                    model.PracticeSegment
		segType                string
		recordedAt, feedbackAt timeValue
	)
	err := row.Scan(
		&seg.ID,
		&seg.SessionID,
		&seg.PieceID,
		&seg.Title,
		&segType,
		&seg.Notes,
		&seg.AudioURL,
		&seg.Duration,
		&seg.MetronomeBPM,
		&seg.ReferenceVideoURL,
		&recordedAt,
		&seg.TeacherFeedbackText,
		&seg.TeacherFeedbackAudio,
		&feedbackAt,
	)
	if err != nil {
		return seg, mapError(err)
	}
	seg.Type = model.SegmentType(segType)
	seg.RecordedAt = recordedAt.Time
	seg.TeacherFeedbackAt = feedbackAt.ptr()
	return seg, nil
}

func (s *Store) CreateSegment(ctx context.Context, seg model.PracticeSegment) error {
	_, err := s.exec(ctx, `
		INSERT INTO practice_segments (`+segmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, seg.ID, seg.SessionID, seg.PieceID, seg.Title, string(seg.Type), seg.Notes, seg.AudioURL,
		seg.Duration, seg.MetronomeBPM, seg.ReferenceVideoURL, s.timeArg(seg.RecordedAt),
		seg.TeacherFeedbackText, seg.TeacherFeedbackAudio, s.nullTimeArg(seg.TeacherFeedbackAt))
	return err
}

// AppendSegment stores seg and adds its duration to the parent session in
// one transaction.
func (s *Store) AppendSegment(ctx context.Context, seg model.PracticeSegment) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if err := tx.CreateSegment(ctx, seg); err != nil {
			return err
		}
		return tx.AddSessionDuration(ctx, seg.SessionID, seg.Duration)
	})
}

func (s *Store) GetSegment(ctx context.Context, id string) (model.PracticeSegment, error) {
	return scanSegment(s.queryRow(ctx, `SELECT `+segmentColumns+` FROM practice_segments WHERE id = ?`, id))
}

func (s *Store) ListSegments(ctx context.Context, sessionID string) ([]model.PracticeSegment, error) {
	return s.listSegments(ctx, []string{sessionID})
}

func (s *Store) listSegments(ctx context.Context, sessionIDs []string) ([]model.PracticeSegment, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.query(ctx, `
		SELECT `+segmentColumns+`
		FROM practice_segments
		WHERE session_id IN (`+placeholders(len(sessionIDs))+`)
		ORDER BY recorded_at ASC
	`, stringArgs(sessionIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PracticeSegment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (s *Store) SetSegmentFeedback(ctx context.Context, id string, text, audioURL *string, at time.Time) error {
	res, err := s.exec(ctx, `
		UPDATE practice_segments
		SET teacher_feedback_text = ?, teacher_feedback_audio = ?, teacher_feedback_at = ?
		WHERE id = ?
	`, text, audioURL, s.timeArg(at), id)
	if err != nil {
		return err
	}
	return affected(res)
}
