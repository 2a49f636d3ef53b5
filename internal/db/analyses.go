package db

import (
	"context"
	"encoding/json"
	"fmt"

	"cadence/practice/internal/model"
)

const analysisColumns = "id, session_id, segment_id, result, created_at"

// Postgres keeps the result as JSONB; reading it back as text keeps the scan
// identical for both engines.
const analysisSelect = "id, session_id, segment_id, CAST(result AS TEXT), created_at"

func scanAnalysis(row rowScanner) (*model.Analysis, error) {
	var (
		a         model.Analysis
		raw       []byte
		createdAt timeValue
	)
	if err := row.Scan(&a.ID, &a.SessionID, &a.SegmentID, &raw, &createdAt); err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(raw, &a.Result); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", a.ID, err)
	}
	a.CreatedAt = createdAt.Time
	return &a, nil
}

// CreateAnalysis stores an analysis for exactly one session or segment. A
// second analysis for the same target fails with ErrConflict.
func (s *Store) CreateAnalysis(ctx context.Context, a model.Analysis) error {
	if (a.SessionID == nil) == (a.SegmentID == nil) {
		return fmt.Errorf("analysis %s must target exactly one of session or segment", a.ID)
	}
	raw, err := json.Marshal(a.Result)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.SessionID, a.SegmentID, string(raw), s.timeArg(a.CreatedAt))
	return err
}

func (s *Store) GetSessionAnalysis(ctx context.Context, sessionID string) (*model.Analysis, error) {
	return scanAnalysis(s.queryRow(ctx, `SELECT `+analysisSelect+` FROM analyses WHERE session_id = ?`, sessionID))
}

func (s *Store) GetSegmentAnalysis(ctx context.Context, segmentID string) (*model.Analysis, error) {
	return scanAnalysis(s.queryRow(ctx, `SELECT `+analysisSelect+` FROM analyses WHERE segment_id = ?`, segmentID))
}

// analysesBy loads analyses keyed by the value of column, which must be
// session_id or segment_id.
func (s *Store) analysesBy(ctx context.Context, column string, ids []string) (map[string]*model.Analysis, error) {
	out := map[string]*model.Analysis{}
	if len(ids) == 0 {
		return out, nil
	}
	if column != "session_id" && column != "segment_id" {
		return nil, fmt.Errorf("unsupported analysis key %q", column)
	}
	rows, err := s.query(ctx, `
		SELECT `+analysisSelect+`
		FROM analyses
		WHERE `+column+` IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		key := a.SessionID
		if column == "segment_id" {
			key = a.SegmentID
		}
		if key != nil {
			out[*key] = a
		}
	}
	return out, rows.Err()
}
