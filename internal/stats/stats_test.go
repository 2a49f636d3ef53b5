package stats

import (
	"testing"
	"time"

	"cadence/practice/internal/model"
)

func intPtr(v int) *int { return &v }

var utc = time.UTC

func noon(now time.Time, daysAgo int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-daysAgo, 12, 0, 0, 0, now.Location())
}

func TestStreak(t *testing.T) {
	now := time.Date(2024, 3, 14, 18, 0, 0, 0, utc)
	cases := []struct {
		name    string
		daysAgo []int
		want    int
	}{
		{"empty", nil, 0},
		{"today only", []int{0}, 1},
		{"today and yesterday", []int{0, 1}, 2},
		{"yesterday and day before", []int{1, 2}, 2},
		{"day before yesterday only", []int{2}, 0},
		{"gap two days ago", []int{0, 1, 3, 4}, 2},
		{"long run", []int{0, 1, 2, 3, 4, 5, 6}, 7},
	}
	for _, tc := range cases {
		var times []time.Time
		for _, n := range tc.daysAgo {
			times = append(times, noon(now, n))
		}
		if got := Streak(times, now, utc); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestStreakSameDayCountsOnce(t *testing.T) {
	now := time.Date(2024, 3, 14, 23, 0, 0, 0, utc)
	times := []time.Time{
		time.Date(2024, 3, 14, 7, 0, 0, 0, utc),
		time.Date(2024, 3, 14, 12, 0, 0, 0, utc),
		time.Date(2024, 3, 14, 22, 59, 0, 0, utc),
	}
	if got := Streak(times, now, utc); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestStreakUsesLocationCalendar(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	now := time.Date(2024, 3, 14, 20, 0, 0, 0, loc)
	// 02:00 UTC on the 15th is still the 14th in loc.
	times := []time.Time{time.Date(2024, 3, 15, 2, 0, 0, 0, utc)}
	if got := Streak(times, now, loc); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestStreakAcrossMonthBoundary(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, utc)
	times := []time.Time{
		time.Date(2024, 3, 1, 8, 0, 0, 0, utc),
		time.Date(2024, 2, 29, 8, 0, 0, 0, utc),
		time.Date(2024, 2, 28, 8, 0, 0, 0, utc),
	}
	if got := Streak(times, now, utc); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestEffectiveDuration(t *testing.T) {
	segments := []model.PracticeSegment{{Duration: 30}, {Duration: 45}, {Duration: 25}}
	if got := EffectiveDuration(model.PracticeSession{Segments: segments}); got != 100 {
		t.Fatalf("expected derived 100, got %d", got)
	}

	explicit := model.PracticeSession{TotalDuration: intPtr(120), Segments: []model.PracticeSegment{{Duration: 90}}}
	if got := EffectiveDuration(explicit); got != 120 {
		t.Fatalf("expected explicit 120, got %d", got)
	}

	if got := EffectiveDuration(model.PracticeSession{}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestAggregateAppliesFallbackPerSession(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, utc)
	sessions := []model.PracticeSession{
		{Date: now, Segments: []model.PracticeSegment{{Duration: 30}, {Duration: 45}, {Duration: 25}}},
		{Date: now, TotalDuration: intPtr(120), Segments: []model.PracticeSegment{{Duration: 90}}},
	}
	got := Aggregate(sessions, Options{Now: now, Location: utc})
	if got.TotalPracticeTime != 220 {
		t.Fatalf("expected 220, got %d", got.TotalPracticeTime)
	}
	if got.TotalSegments != 4 {
		t.Fatalf("expected 4 segments, got %d", got.TotalSegments)
	}
	if got.AverageSessionDuration != 110 {
		t.Fatalf("expected average 110, got %d", got.AverageSessionDuration)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil, Options{Now: time.Now(), Location: utc})
	if got != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", got)
	}
}

func TestAggregateScenario(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 0, 0, 0, utc)
	sessions := []model.PracticeSession{
		{ID: "a", Date: now.Add(-time.Hour), TotalDuration: intPtr(600)},
		{ID: "b", Date: now.AddDate(0, 0, -8), TotalDuration: intPtr(300)},
	}
	got := Aggregate(sessions, Options{Now: now, Location: utc})
	want := Stats{
		TotalSessions:          2,
		TotalPracticeTime:      900,
		TotalMinutes:           15,
		AverageSessionDuration: 450,
		SessionsThisWeek:       1,
		Streak:                 1,
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 0, 0, 0, utc)
	sessions := []model.PracticeSession{
		{Date: now, TotalDuration: intPtr(61), Analysis: &model.Analysis{ID: "x"}},
		{Date: now.AddDate(0, 0, -1), Segments: []model.PracticeSegment{{Duration: 10}}},
	}
	opts := Options{Now: now, Location: utc}
	first := Aggregate(sessions, opts)
	second := Aggregate(sessions, opts)
	if first != second {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
	if first.TotalMinutes != 1 {
		t.Fatalf("expected floor minutes 1, got %d", first.TotalMinutes)
	}
}

func TestAggregateAnalyzedGranularity(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 0, 0, 0, utc)
	analysis := &model.Analysis{ID: "x"}
	sessions := []model.PracticeSession{
		{Date: now, Analysis: analysis, Segments: []model.PracticeSegment{{Analysis: analysis}, {Analysis: analysis}, {}}},
		{Date: now, Segments: []model.PracticeSegment{{Analysis: analysis}}},
	}

	perSession := Aggregate(sessions, Options{Now: now, Location: utc})
	if perSession.AnalyzedCount != 1 {
		t.Fatalf("expected 1 analysed session, got %d", perSession.AnalyzedCount)
	}
	perSegment := Aggregate(sessions, Options{Now: now, Location: utc, Granularity: PerSegment})
	if perSegment.AnalyzedCount != 3 {
		t.Fatalf("expected 3 analysed segments, got %d", perSegment.AnalyzedCount)
	}
}

func TestAggregateWeekWindow(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 0, 0, 0, utc)
	sessions := []model.PracticeSession{
		{Date: now.Add(-week)},
		{Date: now.Add(-week - time.Second)},
		{Date: now.Add(time.Hour)},
		{Date: now},
	}
	got := Aggregate(sessions, Options{Now: now, Location: utc})
	if got.SessionsThisWeek != 2 {
		t.Fatalf("expected 2 sessions in window, got %d", got.SessionsThisWeek)
	}
}

func TestAggregateByCreatedAt(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 0, 0, 0, utc)
	sessions := []model.PracticeSession{
		{Date: now.AddDate(0, 0, -20), CreatedAt: now.Add(-time.Hour)},
	}
	byDate := Aggregate(sessions, Options{Now: now, Location: utc})
	byCreated := Aggregate(sessions, Options{Now: now, Location: utc, Timestamp: ByCreatedAt})
	if byDate.SessionsThisWeek != 0 || byDate.Streak != 0 {
		t.Fatalf("expected date-based window to exclude session, got %+v", byDate)
	}
	if byCreated.SessionsThisWeek != 1 || byCreated.Streak != 1 {
		t.Fatalf("expected createdAt-based window to include session, got %+v", byCreated)
	}
}
