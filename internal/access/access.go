// Package access decides whether an authenticated caller may touch a
// practice session, segment or student. Every handler asks this package for a
// verdict; none of them re-derive the ownership chain inline.
//
// The chain is segment -> session -> student -> teacher. A student owns its
// sessions; a teacher supervises the sessions of the students it invited.
package access

import "cadence/practice/internal/model"

type Caller struct {
	ID   string
	Role model.Role
}

type Action int

const (
	// Read is granted to the owning student and the supervising teacher.
	Read Action = iota
	// WriteAsOwner is granted to the owning student only.
	WriteAsOwner
	// WriteAsSupervisor is granted to the supervising teacher only.
	WriteAsSupervisor
)

func (a Action) String() string {
	switch a {
	case Read:
		return "read"
	case WriteAsOwner:
		return "write_as_owner"
	case WriteAsSupervisor:
		return "write_as_supervisor"
	default:
		return "unknown"
	}
}

// CanAccessSession reports whether caller may read session. owner must be the
// account referenced by session.StudentID.
func CanAccessSession(caller Caller, session model.PracticeSession, owner model.Account) bool {
	return CanPerform(caller, Read, session, owner)
}

// CanAccessSegment resolves the verdict through the segment's parent session.
func CanAccessSegment(caller Caller, segment model.PracticeSegment, session model.PracticeSession, owner model.Account) bool {
	return CanPerformOnSegment(caller, Read, segment, session, owner)
}

func CanPerform(caller Caller, action Action, session model.PracticeSession, owner model.Account) bool {
	if caller.ID == "" || owner.ID != session.StudentID {
		return false
	}
	switch action {
	case Read:
		return isOwningStudent(caller, session) || isSupervisingTeacher(caller, owner)
	case WriteAsOwner:
		return isOwningStudent(caller, session)
	case WriteAsSupervisor:
		return isSupervisingTeacher(caller, owner)
	default:
		return false
	}
}

func CanPerformOnSegment(caller Caller, action Action, segment model.PracticeSegment, session model.PracticeSession, owner model.Account) bool {
	if segment.SessionID != session.ID {
		return false
	}
	return CanPerform(caller, action, session, owner)
}

// CanMutateStudentRoster gates inviting, deleting and viewing statistics of a
// student: only the teacher the student belongs to qualifies.
func CanMutateStudentRoster(caller Caller, target model.Account) bool {
	if caller.Role != model.RoleTeacher || caller.ID == "" {
		return false
	}
	if target.Role != model.RoleStudent || target.TeacherID == nil {
		return false
	}
	return *target.TeacherID == caller.ID
}

func isOwningStudent(caller Caller, session model.PracticeSession) bool {
	return caller.Role == model.RoleStudent && caller.ID == session.StudentID
}

func isSupervisingTeacher(caller Caller, owner model.Account) bool {
	return caller.Role == model.RoleTeacher && owner.TeacherID != nil && caller.ID == *owner.TeacherID
}
