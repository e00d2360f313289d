package mtr

import "testing"

func TestStatus_Classes(t *testing.T) {
	tests := []struct {
		status  Status
		replied bool
		reached bool
	}{
		{StatusNoReply, false, false},
		{StatusSuccess, true, true},
		{StatusTransitExpired, true, true},
		{StatusHostUnreachable, true, false},
		{StatusSourceQuench, true, false},
		{StatusGeneralFailure, true, false},
	}
	for _, tt := range tests {
		if got := tt.status.Replied(); got != tt.replied {
			t.Fatalf("%v.Replied() = %v, want %v", tt.status, got, tt.replied)
		}
		if got := tt.status.Reached(); got != tt.reached {
			t.Fatalf("%v.Reached() = %v, want %v", tt.status, got, tt.reached)
		}
	}
}

func TestStatus_Description(t *testing.T) {
	seen := make(map[string]Status)
	for s := StatusBufferTooSmall; s <= StatusGeneralFailure; s++ {
		d := s.Description()
		if d == "" || d == statusMessageIDs[s] {
			t.Fatalf("missing description for %v", s)
		}
		if prev, dup := seen[d]; dup {
			t.Fatalf("%v and %v share description %q", prev, s, d)
		}
		seen[d] = s
	}
	if Status(250).Description() != StatusGeneralFailure.Description() {
		t.Fatalf("unknown status must read as general failure")
	}
}

func TestStatus_String(t *testing.T) {
	if StatusPortUnreachable.String() != "portUnreachable" {
		t.Fatalf("unexpected string: %q", StatusPortUnreachable.String())
	}
	if Status(250).String() != "unknown" {
		t.Fatalf("unexpected string: %q", Status(250).String())
	}
}
