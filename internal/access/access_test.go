package access

import (
	"testing"

	"cadence/practice/internal/model"
)

const (
	teacherID      = "22222222-2222-2222-2222-222222222222"
	otherTeacherID = "22222222-2222-2222-2222-222222222229"
	studentID      = "33333333-3333-3333-3333-333333333331"
	otherStudentID = "33333333-3333-3333-3333-333333333332"
)

func strPtr(v string) *string { return &v }

func student(id string, teacher string) model.Account {
	return model.Account{ID: id, Role: model.RoleStudent, TeacherID: strPtr(teacher)}
}

func TestCanAccessSessionMatrix(t *testing.T) {
	session := model.PracticeSession{ID: "session-1", StudentID: studentID}
	owner := student(studentID, teacherID)

	cases := []struct {
		name   string
		caller Caller
		want   bool
	}{
		{"owning student", Caller{ID: studentID, Role: model.RoleStudent}, true},
		{"other student", Caller{ID: otherStudentID, Role: model.RoleStudent}, false},
		{"supervising teacher", Caller{ID: teacherID, Role: model.RoleTeacher}, true},
		{"other teacher", Caller{ID: otherTeacherID, Role: model.RoleTeacher}, false},
		{"student id with teacher role", Caller{ID: studentID, Role: model.RoleTeacher}, false},
		{"teacher id with student role", Caller{ID: teacherID, Role: model.RoleStudent}, false},
		{"unknown role", Caller{ID: studentID, Role: model.Role("ADMIN")}, false},
		{"empty caller", Caller{}, false},
	}
	for _, tc := range cases {
		if got := CanAccessSession(tc.caller, session, owner); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestTeacherOwnsOnlyOwnStudents(t *testing.T) {
	s1 := student(studentID, teacherID)
	s2 := student(otherStudentID, otherTeacherID)
	teacher := Caller{ID: teacherID, Role: model.RoleTeacher}

	if !CanAccessSession(teacher, model.PracticeSession{ID: "a", StudentID: s1.ID}, s1) {
		t.Fatalf("expected teacher to access own student's session")
	}
	if CanAccessSession(teacher, model.PracticeSession{ID: "b", StudentID: s2.ID}, s2) {
		t.Fatalf("expected teacher to be denied another teacher's student")
	}
}

func TestTeacherDeniedWhenStudentHasNoTeacher(t *testing.T) {
	owner := model.Account{ID: studentID, Role: model.RoleStudent}
	session := model.PracticeSession{ID: "a", StudentID: studentID}
	if CanAccessSession(Caller{ID: teacherID, Role: model.RoleTeacher}, session, owner) {
		t.Fatalf("expected denial for student without teacher")
	}
}

func TestMismatchedOwnerDenied(t *testing.T) {
	session := model.PracticeSession{ID: "a", StudentID: studentID}
	wrongOwner := student(otherStudentID, teacherID)
	if CanAccessSession(Caller{ID: teacherID, Role: model.RoleTeacher}, session, wrongOwner) {
		t.Fatalf("expected denial when owner is not the session's student")
	}
}

func TestSegmentMatchesSessionVerdict(t *testing.T) {
	session := model.PracticeSession{ID: "session-1", StudentID: studentID}
	segment := model.PracticeSegment{ID: "segment-1", SessionID: session.ID}
	owners := []model.Account{student(studentID, teacherID), student(studentID, otherTeacherID)}
	callers := []Caller{
		{ID: studentID, Role: model.RoleStudent},
		{ID: otherStudentID, Role: model.RoleStudent},
		{ID: teacherID, Role: model.RoleTeacher},
		{ID: otherTeacherID, Role: model.RoleTeacher},
	}
	for _, owner := range owners {
		for _, caller := range callers {
			want := CanAccessSession(caller, session, owner)
			if got := CanAccessSegment(caller, segment, session, owner); got != want {
				t.Fatalf("caller %+v owner teacher %s: segment %v, session %v", caller, *owner.TeacherID, got, want)
			}
		}
	}

	orphan := model.PracticeSegment{ID: "segment-2", SessionID: "other-session"}
	if CanAccessSegment(Caller{ID: studentID, Role: model.RoleStudent}, orphan, session, owners[0]) {
		t.Fatalf("expected denial for a segment of another session")
	}
}

func TestActionClasses(t *testing.T) {
	session := model.PracticeSession{ID: "a", StudentID: studentID}
	owner := student(studentID, teacherID)
	stu := Caller{ID: studentID, Role: model.RoleStudent}
	tea := Caller{ID: teacherID, Role: model.RoleTeacher}

	cases := []struct {
		caller Caller
		action Action
		want   bool
	}{
		{stu, Read, true},
		{stu, WriteAsOwner, true},
		{stu, WriteAsSupervisor, false},
		{tea, Read, true},
		{tea, WriteAsOwner, false},
		{tea, WriteAsSupervisor, true},
		{tea, Action(99), false},
	}
	for _, tc := range cases {
		if got := CanPerform(tc.caller, tc.action, session, owner); got != tc.want {
			t.Fatalf("%s %s: expected %v, got %v", tc.caller.Role, tc.action, tc.want, got)
		}
	}
}

func TestCanMutateStudentRoster(t *testing.T) {
	own := student(studentID, teacherID)
	foreign := student(otherStudentID, otherTeacherID)
	teacherAccount := model.Account{ID: otherTeacherID, Role: model.RoleTeacher}

	if !CanMutateStudentRoster(Caller{ID: teacherID, Role: model.RoleTeacher}, own) {
		t.Fatalf("expected teacher to manage own student")
	}
	if CanMutateStudentRoster(Caller{ID: teacherID, Role: model.RoleTeacher}, foreign) {
		t.Fatalf("expected teacher to be denied foreign student")
	}
	if CanMutateStudentRoster(Caller{ID: studentID, Role: model.RoleStudent}, own) {
		t.Fatalf("expected student to never mutate roster")
	}
	if CanMutateStudentRoster(Caller{ID: teacherID, Role: model.RoleTeacher}, teacherAccount) {
		t.Fatalf("expected teacher accounts to be outside any roster")
	}
}
