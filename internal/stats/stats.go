// Package stats reduces one student's practice sessions into summary
// statistics. It does no filtering: each caller selects the sessions it wants
// counted and says so at the call site.
package stats

import (
	"time"

	"cadence/practice/internal/model"
)

const week = 7 * 24 * time.Hour

type Stats struct {
	TotalSessions          int `json:"totalSessions"`
	TotalPracticeTime      int `json:"totalPracticeTime"`
	TotalMinutes           int `json:"totalMinutes"`
	TotalSegments          int `json:"totalSegments"`
	AnalyzedCount          int `json:"analyzedCount"`
	AverageSessionDuration int `json:"averageSessionDuration"`
	SessionsThisWeek       int `json:"sessionsThisWeek"`
	Streak                 int `json:"streak"`
}

// Timestamp selects which session field places a session in time.
type Timestamp int

const (
	ByDate Timestamp = iota
	ByCreatedAt
)

// Granularity selects what AnalyzedCount counts.
type Granularity int

const (
	PerSession Granularity = iota
	PerSegment
)

type Options struct {
	Now         time.Time
	Location    *time.Location
	Timestamp   Timestamp
	Granularity Granularity
}

func (o Options) normalized() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

func Aggregate(sessions []model.PracticeSession, opts Options) Stats {
	opts = opts.normalized()

	var out Stats
	out.TotalSessions = len(sessions)
	times := make([]time.Time, 0, len(sessions))
	weekStart := opts.Now.Add(-week)

	for _, s := range sessions {
		out.TotalPracticeTime += EffectiveDuration(s)
		out.TotalSegments += len(s.Segments)

		switch opts.Granularity {
		case PerSegment:
			for _, seg := range s.Segments {
				if seg.Analysis != nil {
					out.AnalyzedCount++
				}
			}
		default:
			if s.Analysis != nil {
				out.AnalyzedCount++
			}
		}

		ts := timestampOf(s, opts.Timestamp)
		if !ts.Before(weekStart) && !ts.After(opts.Now) {
			out.SessionsThisWeek++
		}
		times = append(times, ts)
	}

	out.TotalMinutes = out.TotalPracticeTime / 60
	if out.TotalSessions > 0 {
		out.AverageSessionDuration = out.TotalPracticeTime / out.TotalSessions
	}
	out.Streak = Streak(times, opts.Now, opts.Location)
	return out
}

// EffectiveDuration is the session's explicit total when set, otherwise the
// sum of its segment durations.
func EffectiveDuration(s model.PracticeSession) int {
	if s.TotalDuration != nil {
		return *s.TotalDuration
	}
	total := 0
	for _, seg := range s.Segments {
		total += seg.Duration
	}
	return total
}

func timestampOf(s model.PracticeSession, ts Timestamp) time.Time {
	if ts == ByCreatedAt {
		return s.CreatedAt
	}
	return s.Date
}
