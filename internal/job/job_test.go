package job

import (
	"testing"
	"time"
)

func TestNewIDFixedWidth(t *testing.T) {
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 8000, time.Local)
	id := NewID(ts)
	if id != "20260304050607000008" {
		t.Fatalf("NewID() = %q, want 20260304050607000008", id)
	}
	if !ValidID(id) {
		t.Fatalf("ValidID(%q) = false", id)
	}
}

func TestNewIDZeroMicroseconds(t *testing.T) {
	id := NewID(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.Local))
	if len(id) != 20 {
		t.Fatalf("len(NewID()) = %d, want 20", len(id))
	}
}

func TestValidIDRejects(t *testing.T) {
	for _, id := range []string{"", "req", "2026030405060700000", "2026030405060700000x"} {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}

func TestResultMapIdentity(t *testing.T) {
	r := Result{JID: "1", Return: true, Out: "nested", Success: true}
	if _, ok := r.Map()["id"]; ok {
		t.Fatal("identity fields present on minimal result")
	}

	r.ID, r.Fun, r.FunArgs = "alpha", "test.ping", []string{}
	m := r.Map()
	if m["id"] != "alpha" || m["fun"] != "test.ping" {
		t.Fatalf("identity fields missing: %v", m)
	}
}
