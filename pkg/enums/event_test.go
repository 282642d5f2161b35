package enums

import "testing"

func TestParseEventStatus(t *testing.T) {
	for _, raw := range []string{"pending", "processing", "completed", "failed", "dead_letter"} {
		status, err := ParseEventStatus(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if status.String() != raw {
			t.Fatalf("expected %q got %q", raw, status)
		}
	}
	if _, err := ParseEventStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestEventStatusIsTerminal(t *testing.T) {
	if !EventStatusCompleted.IsTerminal() || !EventStatusDeadLetter.IsTerminal() {
		t.Fatal("completed and dead_letter must be terminal")
	}
	if EventStatusFailed.IsTerminal() {
		t.Fatal("failed is retryable, not terminal")
	}
}

func TestParseEventPriorityDefaultsToNormal(t *testing.T) {
	priority, err := ParseEventPriority("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if priority != EventPriorityNormal {
		t.Fatalf("expected normal, got %s", priority)
	}
	if _, err := ParseEventPriority("urgent"); err == nil {
		t.Fatal("expected error for unknown priority")
	}
	if !EventPriorityCritical.IsValid() {
		t.Fatal("critical should be valid")
	}
}
