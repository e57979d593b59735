package registrar

import (
	"context"
	"errors"
	"testing"
)

type fakeAPI struct {
	current []string
	getErr  error

	updated     []string
	updateCalls int
	updateErr   error
}

func (f *fakeAPI) GetNameservers(ctx context.Context, domain string) ([]string, error) {
	return f.current, f.getErr
}

func (f *fakeAPI) UpdateNameservers(ctx context.Context, domain string, nameservers []string) error {
	f.updateCalls++
	f.updated = nameservers
	return f.updateErr
}

func TestSync_NoChangeNeeded(t *testing.T) {
	api := &fakeAPI{current: []string{"NS2.Example.COM.", "ns1.example.com"}}
	s := New(api)

	changed, err := s.Sync(context.Background(), "example.com",
		[]string{"ns1.example.com.", "ns2.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("equivalent delegation sets should be a no-op")
	}
	if api.updateCalls != 0 {
		t.Errorf("expected no update call, got %d", api.updateCalls)
	}
}

func TestSync_UpdatesOnDrift(t *testing.T) {
	api := &fakeAPI{current: []string{"old-ns1.example.net", "old-ns2.example.net"}}
	s := New(api)

	desired := []string{"ns1.example.com", "ns2.example.com"}
	changed, err := s.Sync(context.Background(), "example.com", desired)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Error("expected changed=true after update")
	}
	if api.updateCalls != 1 {
		t.Fatalf("expected 1 update call, got %d", api.updateCalls)
	}
	if len(api.updated) != 2 || api.updated[0] != "ns1.example.com" {
		t.Errorf("unexpected nameservers pushed: %v", api.updated)
	}
}

func TestSync_DryRun(t *testing.T) {
	api := &fakeAPI{current: []string{"old-ns.example.net"}}
	s := New(api, WithDryRun(true))

	changed, err := s.Sync(context.Background(), "example.com", []string{"ns1.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Error("dry-run should still report the pending change")
	}
	if api.updateCalls != 0 {
		t.Errorf("dry-run must not call the registrar, got %d calls", api.updateCalls)
	}
}

func TestSync_EmptyNameservers(t *testing.T) {
	s := New(&fakeAPI{})

	if _, err := s.Sync(context.Background(), "example.com", nil); err == nil {
		t.Error("expected error for empty nameserver set")
	}
}

func TestSync_GetError(t *testing.T) {
	sentinel := errors.New("registrar unavailable")
	api := &fakeAPI{getErr: sentinel}
	s := New(api)

	_, err := s.Sync(context.Background(), "example.com", []string{"ns1.example.com"})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped fetch error, got: %v", err)
	}
	if api.updateCalls != 0 {
		t.Error("must not update after a failed fetch")
	}
}

func TestNameserversEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"identical", []string{"ns1.example.com"}, []string{"ns1.example.com"}, true},
		{"order ignored", []string{"ns1.x", "ns2.x"}, []string{"ns2.x", "ns1.x"}, true},
		{"case ignored", []string{"NS1.Example.COM"}, []string{"ns1.example.com"}, true},
		{"trailing dot ignored", []string{"ns1.example.com."}, []string{"ns1.example.com"}, true},
		{"length mismatch", []string{"ns1.x"}, []string{"ns1.x", "ns2.x"}, false},
		{"different servers", []string{"ns1.x"}, []string{"ns2.x"}, false},
		{"duplicate counts respected", []string{"ns1.x", "ns1.x"}, []string{"ns1.x", "ns2.x"}, false},
		{"both empty", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NameserversEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("NameserversEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
