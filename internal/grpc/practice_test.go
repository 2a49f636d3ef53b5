package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"cadence/practice/internal/db"
	"cadence/practice/internal/model"
)

const (
	teacherID      = "22222222-2222-2222-2222-222222222221"
	otherTeacherID = "22222222-2222-2222-2222-222222222222"
	studentID      = "33333333-3333-3333-3333-333333333331"
	serviceToken   = "service-secret"
)

var fixedNow = time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite::memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	ctx := context.Background()
	accounts := []model.Account{
		{ID: teacherID, Email: "teacher@example.com", Name: "Teacher", Role: model.RoleTeacher},
		{ID: otherTeacherID, Email: "other@example.com", Name: "Other", Role: model.RoleTeacher},
		{ID: studentID, Email: "student@example.com", Name: "Student", Role: model.RoleStudent, TeacherID: strPtr(teacherID)},
	}
	for _, a := range accounts {
		a.PasswordHash = "hash"
		a.CreatedAt = fixedNow
		a.UpdatedAt = fixedNow
		if err := store.CreateAccount(ctx, a); err != nil {
			t.Fatalf("seed account %s: %v", a.ID, err)
		}
	}

	sessions := []model.PracticeSession{
		{ID: "s-today", Date: fixedNow.Add(-8 * time.Hour), TotalDuration: intPtr(600), Status: model.SessionCompleted},
		{ID: "s-yesterday", Date: fixedNow.Add(-32 * time.Hour), TotalDuration: intPtr(300), Status: model.SessionCompleted},
		{ID: "s-active", Date: fixedNow.Add(-1 * time.Hour), TotalDuration: intPtr(900), Status: model.SessionActive},
	}
	for _, ps := range sessions {
		ps.StudentID = studentID
		ps.Title = ps.ID
		ps.CreatedAt = ps.Date
		if err := store.CreateSession(ctx, ps); err != nil {
			t.Fatalf("seed session %s: %v", ps.ID, err)
		}
	}
	for _, id := range []string{"seg-1", "seg-2"} {
		err := store.CreateSegment(ctx, model.PracticeSegment{
			ID:         id,
			SessionID:  "s-today",
			Title:      id,
			Type:       model.SegmentPiece,
			AudioURL:   "/uploads/" + id + ".webm",
			Duration:   300,
			RecordedAt: fixedNow.Add(-8 * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed segment %s: %v", id, err)
		}
	}
	err = store.CreateAnalysis(ctx, model.Analysis{
		ID:        "analysis-1",
		SegmentID: strPtr("seg-1"),
		Result:    model.AnalysisResult{OverallFeedback: "steady"},
		CreatedAt: fixedNow,
	})
	if err != nil {
		t.Fatalf("seed analysis: %v", err)
	}
	return store
}

func startServer(t *testing.T, store *db.Store) *bufconn.Listener {
	t.Helper()
	srv, err := NewServer(store, serviceToken, WithClock(func() time.Time { return fixedNow }, time.UTC))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)
	return lis
}

func dialBuf(t *testing.T, lis *bufconn.Listener, token string) *PracticeQueryClient {
	t.Helper()
	opts := []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if token != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(ServiceAuthUnaryClientInterceptor(token)))
	}
	conn, err := grpc.DialContext(context.Background(), "bufnet", opts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewPracticeQueryClient(conn)
}

func TestServiceTokenRequired(t *testing.T) {
	lis := startServer(t, newTestStore(t))

	_, err := dialBuf(t, lis, "").GetStudentStats(context.Background(), studentID)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	_, err = dialBuf(t, lis, "wrong").GetStudentStats(context.Background(), studentID)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestNewServiceAuthUnaryInterceptorRequiresToken(t *testing.T) {
	if _, err := NewServiceAuthUnaryInterceptor(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestNewServerRequiresServiceToken(t *testing.T) {
	srv, err := NewServer(newTestStore(t), "")
	if err == nil {
		srv.Stop()
		t.Fatalf("expected error for empty service token")
	}
}

func TestGetStudentStats(t *testing.T) {
	client := dialBuf(t, startServer(t, newTestStore(t)), serviceToken)

	out, err := client.GetStudentStats(context.Background(), studentID)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	fields := out.GetFields()
	if got := fields["studentId"].GetStringValue(); got != studentID {
		t.Fatalf("expected studentId %s, got %q", studentID, got)
	}
	cases := map[string]float64{
		"totalSessions":          2,
		"totalPracticeTime":      900,
		"totalMinutes":           15,
		"totalSegments":          2,
		"analyzedCount":          1,
		"averageSessionDuration": 450,
		"sessionsThisWeek":       2,
		"streak":                 2,
	}
	for key, want := range cases {
		if got := fields[key].GetNumberValue(); got != want {
			t.Fatalf("%s: expected %v, got %v", key, want, got)
		}
	}
}

func TestGetStudentStatsErrors(t *testing.T) {
	client := dialBuf(t, startServer(t, newTestStore(t)), serviceToken)

	tests := []struct {
		name string
		id   string
		code codes.Code
	}{
		{name: "empty", id: " ", code: codes.InvalidArgument},
		{name: "unknown", id: "missing", code: codes.NotFound},
		{name: "teacher", id: teacherID, code: codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetStudentStats(context.Background(), tt.id)
			if status.Code(err) != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestValidateTeacherStudent(t *testing.T) {
	client := dialBuf(t, startServer(t, newTestStore(t)), serviceToken)

	tests := []struct {
		name      string
		teacherID string
		studentID string
		want      bool
	}{
		{name: "supervisor", teacherID: teacherID, studentID: studentID, want: true},
		{name: "other teacher", teacherID: otherTeacherID, studentID: studentID, want: false},
		{name: "unknown student", teacherID: teacherID, studentID: "missing", want: false},
		{name: "teacher as student", teacherID: teacherID, studentID: otherTeacherID, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.ValidateTeacherStudent(context.Background(), tt.teacherID, tt.studentID)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	_, err := client.ValidateTeacherStudent(context.Background(), "", studentID)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
