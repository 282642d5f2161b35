package instance

import (
	"os"

	"github.com/angelmondragon/packfinderz-events/pkg/env"
)

// GetID returns the bus instance identifier used to tag broadcasts.
// INSTANCE_ID wins over WORKER_ID, then the hostname, then "eventbus-0".
func GetID() string {
	fallback := "eventbus-0"
	if host, err := os.Hostname(); err == nil && host != "" {
		fallback = host
	}
	return env.First(fallback, "INSTANCE_ID", "WORKER_ID")
}
