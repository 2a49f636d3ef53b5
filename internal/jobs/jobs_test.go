package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"cadence/practice/internal/config"
	"cadence/practice/internal/db"
	"cadence/practice/internal/model"
)

var fixedNow = time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func newScheduler(t *testing.T, cfg config.Config) (*Scheduler, *db.Store) {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite::memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewScheduler(cfg, store, log)
	s.now = func() time.Time { return fixedNow }
	return s, store
}

func seedAccount(t *testing.T, store *db.Store, a model.Account) {
	t.Helper()
	a.CreatedAt = fixedNow
	a.UpdatedAt = fixedNow
	if err := store.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("seed account %s: %v", a.ID, err)
	}
}

func TestCloseStaleSessions(t *testing.T) {
	s, store := newScheduler(t, config.Config{StaleSessionAfter: 12 * time.Hour})
	ctx := context.Background()

	seedAccount(t, store, model.Account{ID: "teacher", Email: "t@example.com", Name: "T", Role: model.RoleTeacher, PasswordHash: "hash"})
	seedAccount(t, store, model.Account{ID: "student", Email: "s@example.com", Name: "S", Role: model.RoleStudent, TeacherID: strPtr("teacher"), PasswordHash: "hash"})
	seedAccount(t, store, model.Account{ID: "student-2", Email: "s2@example.com", Name: "S2", Role: model.RoleStudent, TeacherID: strPtr("teacher"), PasswordHash: "hash"})

	sessions := []model.PracticeSession{
		{ID: "stale", Date: fixedNow.Add(-13 * time.Hour), TotalDuration: intPtr(0), Status: model.SessionActive},
		{ID: "fresh", StudentID: "student-2", Date: fixedNow.Add(-1 * time.Hour), TotalDuration: intPtr(0), Status: model.SessionActive},
		{ID: "done", Date: fixedNow.Add(-48 * time.Hour), TotalDuration: intPtr(42), Status: model.SessionCompleted},
	}
	for _, ps := range sessions {
		if ps.StudentID == "" {
			ps.StudentID = "student"
		}
		ps.Title = ps.ID
		ps.CreatedAt = ps.Date
		if err := store.CreateSession(ctx, ps); err != nil {
			t.Fatalf("seed session %s: %v", ps.ID, err)
		}
	}
	for i, d := range []int{120, 45} {
		err := store.CreateSegment(ctx, model.PracticeSegment{
			ID:         []string{"seg-a", "seg-b"}[i],
			SessionID:  "stale",
			Title:      "scales",
			Type:       model.SegmentWarmup,
			AudioURL:   "/uploads/seg.webm",
			Duration:   d,
			RecordedAt: fixedNow.Add(-13 * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed segment: %v", err)
		}
	}

	affected, err := s.CloseStaleSessions(ctx)
	if err != nil {
		t.Fatalf("close stale: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 session closed, got %d", affected)
	}

	stale, err := store.GetSession(ctx, "stale")
	if err != nil {
		t.Fatalf("get stale: %v", err)
	}
	if stale.Status != model.SessionCompleted {
		t.Fatalf("expected stale session completed, got %s", stale.Status)
	}
	if stale.TotalDuration == nil || *stale.TotalDuration != 165 {
		t.Fatalf("expected total 165, got %v", stale.TotalDuration)
	}
	fresh, err := store.GetSession(ctx, "fresh")
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if fresh.Status != model.SessionActive {
		t.Fatalf("expected fresh session active, got %s", fresh.Status)
	}
	done, err := store.GetSession(ctx, "done")
	if err != nil {
		t.Fatalf("get done: %v", err)
	}
	if done.TotalDuration == nil || *done.TotalDuration != 42 {
		t.Fatalf("expected completed session untouched, got %v", done.TotalDuration)
	}
}

func TestCloseStaleSessionsDisabled(t *testing.T) {
	s, _ := newScheduler(t, config.Config{})
	affected, err := s.CloseStaleSessions(context.Background())
	if err != nil || affected != 0 {
		t.Fatalf("expected no-op, got %d, %v", affected, err)
	}
}

func TestPurgeExpiredInvites(t *testing.T) {
	s, store := newScheduler(t, config.Config{})
	ctx := context.Background()

	expired := fixedNow.Add(-time.Hour)
	valid := fixedNow.Add(time.Hour)
	seedAccount(t, store, model.Account{ID: "teacher", Email: "t@example.com", Name: "T", Role: model.RoleTeacher, PasswordHash: "hash"})
	seedAccount(t, store, model.Account{ID: "lapsed", Email: "lapsed@example.com", Name: "L", Role: model.RoleStudent,
		TeacherID: strPtr("teacher"), InviteToken: strPtr("tok-1"), InviteExpiresAt: &expired})
	seedAccount(t, store, model.Account{ID: "pending", Email: "pending@example.com", Name: "P", Role: model.RoleStudent,
		TeacherID: strPtr("teacher"), InviteToken: strPtr("tok-2"), InviteExpiresAt: &valid})
	seedAccount(t, store, model.Account{ID: "joined", Email: "joined@example.com", Name: "J", Role: model.RoleStudent,
		TeacherID: strPtr("teacher"), PasswordHash: "hash", InviteExpiresAt: &expired})

	affected, err := s.PurgeExpiredInvites(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 invite purged, got %d", affected)
	}
	if _, err := store.GetAccountByID(ctx, "lapsed"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected lapsed invite removed, got %v", err)
	}
	for _, id := range []string{"pending", "joined"} {
		if _, err := store.GetAccountByID(ctx, id); err != nil {
			t.Fatalf("expected %s kept: %v", id, err)
		}
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s, _ := newScheduler(t, config.Config{CronStaleSessions: "not a spec"})
	if err := s.Start(); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestStartStop(t *testing.T) {
	s, _ := newScheduler(t, config.Config{
		StaleSessionAfter: time.Hour,
		CronStaleSessions: "*/15 * * * *",
		CronInvitePurge:   "@hourly",
	})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := len(s.engine.Entries()); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
