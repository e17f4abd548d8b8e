package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	tests := []struct {
		kind Kind
		want error
	}{
		{KindNotFound, ErrNotFound},
		{KindAuthentication, ErrAuthentication},
		{KindBadRequest, ErrBadRequest},
		{KindConnection, ErrConnection},
		{KindTimeout, ErrTimeout},
		{KindDevice, ErrDevice},
		{KindSession, ErrSession},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("outer: %w", New(tt.kind, "op", "boom"))
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
			for _, other := range kindSentinels {
				if other != tt.want && errors.Is(err, other) {
					t.Errorf("errors.Is matched unrelated sentinel %v", other)
				}
			}
		})
	}
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	err := Wrap(KindTimeout, "GET /ISAPI/System/status", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause should be reachable through Unwrap")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("kind sentinel should match")
	}
}

func TestError_Message(t *testing.T) {
	err := New(KindBadRequest, "sync_users", "invalid employeeNo %q", "a b").WithDevice("door-1")
	want := `sync_users [door-1]: bad_request: invalid employeeNo "a b"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindDevice, "op", nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v", got)
	}
	wrapped := fmt.Errorf("ctx: %w", New(KindSession, "op", "x"))
	if got := KindOf(wrapped); got != KindSession {
		t.Errorf("KindOf(wrapped) = %v, want session", got)
	}
}

func TestIsTransport(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindConnection, true},
		{KindTimeout, true},
		{KindAuthentication, true},
		{KindBadRequest, false},
		{KindDevice, false},
		{KindNotFound, false},
	}
	for _, tt := range tests {
		if got := IsTransport(New(tt.kind, "op", "")); got != tt.want {
			t.Errorf("IsTransport(%v) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
