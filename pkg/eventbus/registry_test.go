package eventbus

import (
	"context"
	"testing"

	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

func noopHandler(name string) *Handler {
	return NewHandler(name, func(context.Context, *events.Event) error { return nil })
}

func names(list []*Handler) []string {
	out := make([]string, 0, len(list))
	for _, h := range list {
		out = append(out, h.Name())
	}
	return out
}

func TestRegistryMatchOrder(t *testing.T) {
	r := newRegistry()
	all := noopHandler("all")
	customers := noopHandler("customers")
	exact := noopHandler("exact")
	second := noopHandler("second")

	for _, sub := range []struct {
		eventType string
		h         *Handler
	}{
		{"*", all},
		{"customer.created", exact},
		{"customer.*", customers},
		{"customer.created", second},
	} {
		if err := r.add(sub.eventType, sub.h); err != nil {
			t.Fatalf("add %s: %v", sub.eventType, err)
		}
	}

	got := names(r.match("customer.created"))
	want := []string{"exact", "second", "all", "customers"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if got := names(r.match("invoice.paid")); len(got) != 1 || got[0] != "all" {
		t.Fatalf("expected only wildcard handler, got %v", got)
	}
	if r.count() != 4 {
		t.Fatalf("expected 4 registrations, got %d", r.count())
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := newRegistry()
	h := noopHandler("twice")
	_ = r.add("order.placed", h)
	_ = r.add("order.placed", h)

	if got := len(r.match("order.placed")); got != 2 {
		t.Fatalf("expected handler twice, got %d", got)
	}
	if !r.remove("order.placed", h) {
		t.Fatalf("expected removal")
	}
	if got := len(r.match("order.placed")); got != 1 {
		t.Fatalf("expected one remaining registration, got %d", got)
	}
	if !r.remove("order.placed", h) || r.remove("order.placed", h) {
		t.Fatalf("unexpected removal result")
	}
	if r.count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.count())
	}
}

func TestRegistrySingleCharPattern(t *testing.T) {
	r := newRegistry()
	_ = r.add("customer.?", noopHandler("single"))

	if got := len(r.match("customer.a")); got != 1 {
		t.Fatalf("expected single-char match, got %d", got)
	}
	if got := len(r.match("customer.ab")); got != 0 {
		t.Fatalf("expected no match, got %d", got)
	}
}

func TestRegistryStarMatchesAcrossDotsAndSlashes(t *testing.T) {
	r := newRegistry()
	_ = r.add("*", noopHandler("all"))
	_ = r.add("billing.*", noopHandler("billing"))

	cases := map[string][]string{
		"billing.invoice.created": {"all", "billing"},
		"billing.eu/invoice":      {"all", "billing"},
		"orders/created":          {"all"},
		"other.event":             {"all"},
	}
	for eventType, want := range cases {
		got := names(r.match(eventType))
		if len(got) != len(want) {
			t.Fatalf("%s: expected %v, got %v", eventType, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: expected %v, got %v", eventType, want, got)
			}
		}
	}
}

func TestRegistryRejectsBadPattern(t *testing.T) {
	r := newRegistry()
	if err := r.add("customer.*[", noopHandler("bad")); !events.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
