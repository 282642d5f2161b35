package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-events/pkg/errors"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

// ParseQueryInt reads an optional bounded integer query parameter.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryStatus reads an optional event status filter. An empty value means no filter.
func ParseQueryStatus(r *http.Request, key string) (enums.EventStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return "", nil
	}
	status, err := enums.ParseEventStatus(raw)
	if err != nil {
		return "", events.WrapValidationError(err, "invalid status filter").WithDetails(map[string]any{"field": key})
	}
	return status, nil
}

// ParseQueryFilter reads a free-text filter, cleaned and capped at maxLen.
func ParseQueryFilter(r *http.Request, key string, maxLen int) string {
	return SanitizeString(r.URL.Query().Get(key), maxLen)
}
