// Package identity provides system identity information for SlidePi.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/brianhealey/slidepi/internal/models"
)

// DefaultVersion is the fallback version string when metadata.json is not found.
const DefaultVersion = "0.1.0"

// Version is set at build time with -ldflags "-X ...identity.Version=...".
var Version = ""

// GetHostname returns the system hostname.
func GetHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "slidepi"
	}
	return h
}

// GetVersion returns the linked-in Version when set, otherwise the version
// from metadata.json in configDir, otherwise DefaultVersion.
func GetVersion(configDir string) string {
	if Version != "" {
		return Version
	}
	return GetVersionFromDir(configDir)
}

// GetVersionFromDir reads the version from metadata.json in dir.
func GetVersionFromDir(dir string) string {
	if dir == "" {
		return DefaultVersion
	}
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return DefaultVersion
	}

	var meta struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &meta); err != nil || meta.Version == "" {
		return DefaultVersion
	}
	return meta.Version
}

// Info returns the identity block for /api/info. The Store field is filled
// in by the controller.
func Info(configDir string) models.Info {
	return models.Info{
		Version:  GetVersion(configDir),
		Hostname: GetHostname(),
	}
}
