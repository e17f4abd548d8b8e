package device

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/faults"
)

// fakeDecrypter reverses "enc:" prefixes.
type fakeDecrypter struct{}

func (fakeDecrypter) Decrypt(payload string) (string, error) {
	if !strings.HasPrefix(payload, "enc:") {
		return "", errors.New("bad payload")
	}
	return strings.TrimPrefix(payload, "enc:"), nil
}

func newTestResolver(devices ...*Device) *Resolver {
	repo := NewMockRepository()
	for _, d := range devices {
		repo.devices[d.ID] = d
	}
	return NewResolver(NewRegistry(repo), fakeDecrypter{})
}

func TestResolver_Resolve(t *testing.T) {
	r := newTestResolver(&Device{
		ID: "door-1", IPAddress: "10.0.0.1", UseHTTPS: true,
		Username: "admin", EncryptedSecret: "enc:pw", TimeoutMs: 3000,
	})

	creds, err := r.Resolve(context.Background(), "door-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if creds.Password != "pw" || creds.Port != 443 || !creds.UseHTTPS || creds.Timeout != 3*time.Second {
		t.Errorf("Resolve() = %+v", creds)
	}
}

func TestResolver_FailuresAreNotFound(t *testing.T) {
	r := newTestResolver(
		&Device{ID: "no-user", IPAddress: "10.0.0.1", EncryptedSecret: "enc:pw"},
		&Device{ID: "no-secret", IPAddress: "10.0.0.2", Username: "admin"},
		&Device{ID: "bad-secret", IPAddress: "10.0.0.3", Username: "admin", EncryptedSecret: "garbage"},
	)

	tests := []struct {
		id    string
		cause error
	}{
		{"", ErrIncompleteConfig},
		{"missing", ErrDeviceNotFound},
		{"no-user", ErrIncompleteConfig},
		{"no-secret", ErrIncompleteConfig},
		{"bad-secret", ErrSecretUnreadable},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.id)
			if !errors.Is(err, faults.ErrNotFound) {
				t.Errorf("Resolve(%q) error = %v, want faults.ErrNotFound", tt.id, err)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("Resolve(%q) error = %v, want cause %v", tt.id, err, tt.cause)
			}
		})
	}
}
