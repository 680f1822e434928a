package enrollment

import (
	"errors"
	"strings"
	"time"
)

// Status is the enrollment record state.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Attendance is the post-hoc attendance mark set by an administrator.
type Attendance string

const (
	AttendanceUnmarked Attendance = "unmarked"
	AttendanceAttended Attendance = "attended"
	AttendanceAbsent   Attendance = "absent"
)

// ValidAttendance reports whether v is a defined attendance value.
func ValidAttendance(v Attendance) bool {
	switch v {
	case AttendanceUnmarked, AttendanceAttended, AttendanceAbsent:
		return true
	}
	return false
}

// Enrollment is a participant's claim on one of an activity's slots.
type Enrollment struct {
	ID         string     `json:"id"`
	ActivityID string     `json:"activity_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone,omitempty"`
	AccountID  string     `json:"account_id,omitempty"`
	DedupKey   string     `json:"-"`
	Status     Status     `json:"status"`
	Attendance Attendance `json:"attendance"`
	EnrolledAt time.Time  `json:"enrolled_at"`
}

// Identity is the participant identity supplied by the caller: an
// authenticated account, or name/email/phone for walk-ins.
type Identity struct {
	AccountID string
	Name      string
	Email     string
	Phone     string
}

// DedupKey resolves the identity value used to detect duplicate
// enrollment: the account reference when present, otherwise the
// normalized email. Computed once at write time and stored.
func (id Identity) DedupKey() string {
	if id.AccountID != "" {
		return "account:" + id.AccountID
	}
	return "email:" + strings.ToLower(strings.TrimSpace(id.Email))
}

var (
	// ErrNotFound is returned when an enrollment id or an
	// (activity, participant) pair resolves to nothing.
	ErrNotFound = errors.New("enrollment not found")
	// ErrDuplicate is returned when the participant already holds an
	// active enrollment on the activity.
	ErrDuplicate = errors.New("participant already enrolled")
	// ErrCapacity is returned when the activity has no free slots left.
	ErrCapacity = errors.New("no slots available")
	// ErrConflict is returned when the admission transaction was aborted
	// by contention and the retry did not help. Callers may retry.
	ErrConflict = errors.New("admission conflict, retry")
)
