package instance

import (
	"os"
	"strings"

	"github.com/angelmondragon/procurement-backend/pkg/env"
)

const (
	envInstanceID = "PROCUREMENT_INSTANCE_ID"
	// set by the platform on each dyno
	envDyno = "DYNO"

	fallbackID = "local"
)

var hostname = os.Hostname

// GetID identifies this process in logs: the explicit instance id, then the
// platform dyno name, then the hostname.
func GetID() string {
	if id := env.First(envInstanceID, envDyno); id != "" {
		return id
	}
	if host, err := hostname(); err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	return fallbackID
}
