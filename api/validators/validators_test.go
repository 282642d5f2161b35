package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-events/pkg/errors"
)

type publishBody struct {
	EventType string `json:"event_type" validate:"required,event_type"`
	Priority  string `json:"priority" validate:"omitempty,oneof=low normal high"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest publishBody
	return DecodeJSONBody(req, &dest)
}

func TestDecodeJSONBody(t *testing.T) {
	if err := decode(t, `{"event_type":"order.placed","priority":"high"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]struct {
		body  string
		field string
	}{
		"empty body":      {body: ""},
		"trailing object": {body: `{"event_type":"a.b"}{"event_type":"c.d"}`},
		"unknown field":   {body: `{"event_type":"a.b","nope":1}`},
		"wildcard type":   {body: `{"event_type":"order.*"}`, field: "event_type"},
		"spaced type":     {body: `{"event_type":"order placed"}`, field: "event_type"},
		"bad priority":    {body: `{"event_type":"a.b","priority":"urgent"}`, field: "priority"},
		"oversized body":  {body: `{"event_type":"` + strings.Repeat("a", MaxBodyBytes) + `"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := decode(t, tc.body)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.field == "" {
				return
			}
			details, ok := typed.Details().(map[string]string)
			if !ok || details[tc.field] == "" {
				t.Fatalf("expected detail for %s, got %#v", tc.field, typed.Details())
			}
		})
	}
}

func TestParseQueryStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?status=dead_letter", nil)
	status, err := ParseQueryStatus(req, "status")
	if err != nil || status != enums.EventStatusDeadLetter {
		t.Fatalf("unexpected result %q %v", status, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if status, err := ParseQueryStatus(req, "status"); err != nil || status != "" {
		t.Fatalf("expected no filter, got %q %v", status, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?status=exploded", nil)
	_, err = ParseQueryStatus(req, "status")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeEventValidation {
		t.Fatalf("expected event validation error, got %v", err)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20", nil)
	if v, err := ParseQueryInt(req, "limit", 100, 1, 50); err != nil || v != 20 {
		t.Fatalf("unexpected result %d %v", v, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(req, "limit", 100, 1, 50); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  tenant\x00-1\n ", 0); got != "tenant-1" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
	if got := SanitizeString("ééé", 2); got != "éé" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}
