package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user", "alice", "token", "abc.def.ghi", "Password", "hunter2", "dangling"})
	want := []interface{}{"user", "alice", "token", "[REDACTED]", "Password", "[REDACTED]", "dangling"}
	if len(out) != len(want) {
		t.Fatalf("expected %d items, got %d: %v", len(want), len(out), out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("item %d: expected %v, got %v", i, want[i], out[i])
		}
	}
}

func TestNewFileDisabledIsNop(t *testing.T) {
	l, err := NewFile("", false)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	l.Info("not written", "k", "v")
}
