package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"cadence/practice/internal/access"
	"cadence/practice/internal/analysis"
	"cadence/practice/internal/db"
	"cadence/practice/internal/metrics"
	"cadence/practice/internal/model"
	"cadence/practice/internal/stats"
)

// handleAnalyzeSession creates the analysis of a session once. A repeated
// request returns the stored analysis with 200.
func (s *Server) handleAnalyzeSession(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSessionFor(w, r, access.Read, true)
	if !ok {
		return
	}
	if session.Analysis != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"analysis": mapAnalysis(session.Analysis)})
		return
	}

	req := analysis.Request{Title: session.Title, Duration: stats.EffectiveDuration(session)}
	if session.AudioURL != nil {
		req.AudioRef = *session.AudioURL
	}
	sessionID := session.ID
	s.createAnalysis(w, r, "session", model.Analysis{SessionID: &sessionID}, req, func() (*model.Analysis, error) {
		return s.store.GetSessionAnalysis(r.Context(), sessionID)
	})
}

func (s *Server) handleGetSessionAnalysis(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSessionFor(w, r, access.Read, false)
	if !ok {
		return
	}
	s.writeStoredAnalysis(w, r, func() (*model.Analysis, error) {
		return s.store.GetSessionAnalysis(r.Context(), session.ID)
	})
}

func (s *Server) handleAnalyzeSegment(w http.ResponseWriter, r *http.Request) {
	segment, _, ok := s.loadSegmentFor(w, r, access.Read)
	if !ok {
		return
	}
	existing, err := s.store.GetSegmentAnalysis(r.Context(), segment.ID)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"analysis": mapAnalysis(existing)})
		return
	}
	if !errors.Is(err, db.ErrNotFound) {
		s.serverError(w, r, err, "load segment analysis")
		return
	}

	req := analysis.Request{AudioRef: segment.AudioURL, Title: segment.Title, Duration: segment.Duration}
	segmentID := segment.ID
	s.createAnalysis(w, r, "segment", model.Analysis{SegmentID: &segmentID}, req, func() (*model.Analysis, error) {
		return s.store.GetSegmentAnalysis(r.Context(), segmentID)
	})
}

func (s *Server) handleGetSegmentAnalysis(w http.ResponseWriter, r *http.Request) {
	segment, _, ok := s.loadSegmentFor(w, r, access.Read)
	if !ok {
		return
	}
	s.writeStoredAnalysis(w, r, func() (*model.Analysis, error) {
		return s.store.GetSegmentAnalysis(r.Context(), segment.ID)
	})
}

// createAnalysis runs the analyzer and stores the result on target. When a
// concurrent request stored one first, that analysis wins.
func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request, kind string, target model.Analysis, req analysis.Request, stored func() (*model.Analysis, error)) {
	target.ID = uuid.NewString()
	target.Result = s.analyzer.Analyze(r.Context(), req)
	target.CreatedAt = s.now().UTC()

	if err := s.store.CreateAnalysis(r.Context(), target); err != nil {
		if errors.Is(err, db.ErrConflict) {
			s.writeStoredAnalysis(w, r, stored)
			return
		}
		s.serverError(w, r, err, "save analysis")
		return
	}
	metrics.ObserveAnalysis(kind, target.Result.Fallback)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"analysis": mapAnalysis(&target)})
}

func (s *Server) writeStoredAnalysis(w http.ResponseWriter, r *http.Request, stored func() (*model.Analysis, error)) {
	existing, err := stored()
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis_not_found")
		return
	}
	if err != nil {
		s.serverError(w, r, err, "load analysis")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"analysis": mapAnalysis(existing)})
}
