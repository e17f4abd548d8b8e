package adapter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/faults"
)

func TestValidateEmployeeNo(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"EMP001", true},
		{"a", true},
		{"emp_01-x", true},
		{strings.Repeat("9", 32), true},
		{"", false},
		{strings.Repeat("9", 33), false},
		{"EMP 001", false},
		{"EMP/001", false},
		{"émp", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := ValidateEmployeeNo(tt.in)
			if tt.want && err != nil {
				t.Fatalf("ValidateEmployeeNo(%q) = %v", tt.in, err)
			}
			if !tt.want {
				if err == nil {
					t.Fatalf("ValidateEmployeeNo(%q) accepted", tt.in)
				}
				if !errors.Is(err, faults.ErrBadRequest) {
					t.Errorf("error kind = %v, want bad_request", faults.KindOf(err))
				}
			}
		})
	}
}

func TestValidateUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		user    DeviceUser
		wantErr bool
	}{
		{"minimal", DeviceUser{EmployeeNo: "E1"}, false},
		{"admin", DeviceUser{EmployeeNo: "E1", UserType: UserTypeAdmin}, false},
		{"bad type", DeviceUser{EmployeeNo: "E1", UserType: "blacklist"}, true},
		{"bad employee", DeviceUser{EmployeeNo: "bad id"}, true},
		{"inverted validity", DeviceUser{EmployeeNo: "E1",
			Validity: &Validity{Enabled: true, Begin: now, End: now.Add(-time.Hour)}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUser(tt.user)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUser() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFilterLogs(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	entries := []LogEntry{
		{Timestamp: base, Level: LogLevelInfo, Message: "a"},
		{Timestamp: base.Add(3 * time.Hour), Level: LogLevelError, Message: "d"},
		{Timestamp: base.Add(time.Hour), Level: LogLevelWarning, Message: "b"},
		{Timestamp: base.Add(2 * time.Hour), Level: LogLevelInfo, Message: "c"},
	}

	tests := []struct {
		name string
		q    LogQuery
		want string
	}{
		{"all newest first", LogQuery{}, "dcba"},
		{"from", LogQuery{From: base.Add(time.Hour)}, "dcb"},
		{"to inclusive", LogQuery{To: base.Add(time.Hour)}, "ba"},
		{"min warning", LogQuery{Level: LogLevelWarning}, "db"},
		{"min error", LogQuery{Level: LogLevelError}, "d"},
		{"limit", LogQuery{Limit: 2}, "dc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got strings.Builder
			for _, e := range FilterLogs(entries, tt.q) {
				got.WriteString(e.Message)
			}
			if got.String() != tt.want {
				t.Errorf("FilterLogs() = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	if typ, ok := ParseType(" Hikvision "); !ok || typ != TypeHikvision {
		t.Errorf("ParseType(Hikvision) = %q, %v", typ, ok)
	}
	if _, ok := ParseType("dahua"); ok {
		t.Error("ParseType(dahua) should be unknown")
	}
	if !KnownCommand(CommandCustom) || KnownCommand("self_destruct") {
		t.Error("KnownCommand mismatch")
	}
}
