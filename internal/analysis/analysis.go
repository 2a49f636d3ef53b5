// Package analysis produces AI feedback for a practice recording. The
// Analyzer never fails: when the model is unreachable, unconfigured or
// returns garbage, callers get a deterministic fallback flagged as such.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"cadence/practice/internal/model"
)

// Request describes the recording to analyse. The model only sees metadata.
type Request struct {
	AudioRef string
	Title    string
	Duration int
}

type Analyzer struct {
	client *Client
	log    logrus.FieldLogger
}

func NewAnalyzer(client *Client, log logrus.FieldLogger) *Analyzer {
	return &Analyzer{client: client, log: log}
}

func (a *Analyzer) Analyze(ctx context.Context, req Request) model.AnalysisResult {
	if a == nil || !a.client.Enabled() {
		return Fallback(req)
	}
	result, err := a.client.Analyze(ctx, req)
	if err != nil {
		if a.log != nil {
			a.log.WithError(err).WithField("title", req.Title).Warn("analysis failed, using fallback")
		}
		return Fallback(req)
	}
	return result
}

func Fallback(req Request) model.AnalysisResult {
	d := req.Duration
	if d < 0 {
		d = 0
	}
	return model.AnalysisResult{
		OverallFeedback: fmt.Sprintf("Great work completing this %d-minute practice session on %q! Consistent practice is the key to improvement. Keep up the dedication and focus on maintaining good technique throughout your practice time.", d/60, req.Title),
		PiecesIdentified: []model.PieceMention{
			{Name: req.Title, Duration: d, TimeSpent: clock(d)},
		},
		TimeBreakdown: model.TimeBreakdown{
			Warmup:     intPtr(d * 15 / 100),
			Technique:  intPtr(d * 35 / 100),
			Repertoire: intPtr(d * 50 / 100),
		},
		Suggestions: []model.Suggestion{
			{Issue: "Practice consistency", Suggestion: "Try to maintain regular daily practice sessions for best results.", Priority: "high"},
			{Issue: "Technique focus", Suggestion: "Spend time on scales and technical exercises to build fundamentals.", Priority: "medium"},
		},
		Strengths: []string{
			"Completed a full practice session",
			"Dedicated time to skill development",
			"Building consistent practice habits",
		},
		AreasForImprovement: []string{
			"Continue working on technical fundamentals",
			"Focus on accuracy over speed",
			"Record more sessions for detailed feedback",
		},
		OverallScore: 7,
		Fallback:     true,
	}
}

func buildPrompt(req Request) string {
	d := req.Duration
	var b strings.Builder
	b.WriteString("You are an expert music teacher providing feedback on a practice session.\n\n")
	fmt.Fprintf(&b, "Session Title: %q\n", req.Title)
	fmt.Fprintf(&b, "Duration: %d minutes %d seconds\n\n", d/60, d%60)
	b.WriteString("Based on this practice session information, provide constructive feedback as a single JSON object with these fields:\n")
	b.WriteString(`{
  "overallFeedback": "2-3 paragraphs of encouraging, constructive feedback",
  "piecesIdentified": [{"name": "piece or exercise", "composer": "if identifiable", "duration": `)
	fmt.Fprintf(&b, "%d, \"timeSpent\": %q}],\n", d, clock(d))
	fmt.Fprintf(&b, "  \"timeBreakdown\": {\"warmup\": %d, \"technique\": %d, \"repertoire\": %d},\n", d*20/100, d*30/100, d*50/100)
	b.WriteString(`  "suggestions": [{"issue": "area", "suggestion": "actionable advice", "priority": "high|medium|low"}],
  "strengths": ["three specific strengths"],
  "areasForImprovement": ["three specific areas"],
  "overallScore": 7
}
`)
	b.WriteString("Provide realistic, encouraging feedback. Score between 6 and 9. Respond with ONLY the JSON object.")
	return b.String()
}

// normalize fills the fields the model left out.
func normalize(r model.AnalysisResult) model.AnalysisResult {
	if strings.TrimSpace(r.OverallFeedback) == "" {
		r.OverallFeedback = "Great practice session!"
	}
	if r.PiecesIdentified == nil {
		r.PiecesIdentified = []model.PieceMention{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []model.Suggestion{}
	}
	if len(r.Strengths) == 0 {
		r.Strengths = []string{"Completed practice session"}
	}
	if r.AreasForImprovement == nil {
		r.AreasForImprovement = []string{}
	}
	if r.OverallScore <= 0 {
		r.OverallScore = 7
	}
	if r.OverallScore > 10 {
		r.OverallScore = 10
	}
	r.Fallback = false
	return r
}

func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func intPtr(v int) *int { return &v }
