package adapter

import (
	"regexp"
	"sort"

	"github.com/nerrad567/gray-logic-access/internal/faults"
)

// employeeNoPattern matches 1-32 letters, digits, underscores or hyphens.
var employeeNoPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// ValidateEmployeeNo rejects malformed employee numbers with a
// faults.KindBadRequest error.
func ValidateEmployeeNo(employeeNo string) error {
	if !employeeNoPattern.MatchString(employeeNo) {
		return faults.New(faults.KindBadRequest, "validate_employee_no",
			"invalid employeeNo %q: want 1-32 of [A-Za-z0-9_-]", employeeNo)
	}
	return nil
}

// ValidateUser checks the fields a device needs before any network call.
func ValidateUser(u DeviceUser) error {
	if err := ValidateEmployeeNo(u.EmployeeNo); err != nil {
		return err
	}
	switch u.UserType {
	case "", UserTypeNormal, UserTypeVisitor, UserTypeAdmin:
	default:
		return faults.New(faults.KindBadRequest, "validate_user",
			"invalid user type %q for %s", u.UserType, u.EmployeeNo)
	}
	if u.Validity != nil && !u.Validity.Begin.IsZero() && !u.Validity.End.IsZero() &&
		u.Validity.End.Before(u.Validity.Begin) {
		return faults.New(faults.KindBadRequest, "validate_user",
			"validity for %s ends before it begins", u.EmployeeNo)
	}
	return nil
}

var logSeverity = map[string]int{
	LogLevelInfo:    0,
	LogLevelWarning: 1,
	LogLevelError:   2,
}

// ValidLogLevel reports whether level is empty or a known severity.
func ValidLogLevel(level string) bool {
	if level == "" {
		return true
	}
	_, ok := logSeverity[level]
	return ok
}

// Log entry caps.
const (
	DefaultLogLimit = 100
	MaxLogLimit     = 1000
)

// FilterLogs applies q to entries: time range (inclusive), minimum level,
// newest first, capped at the query limit.
func FilterLogs(entries []LogEntry, q LogQuery) []LogEntry {
	minSeverity := logSeverity[q.Level]

	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if !q.From.IsZero() && e.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.Timestamp.After(q.To) {
			continue
		}
		if logSeverity[e.Level] < minSeverity {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
