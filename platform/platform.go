package platform

import (
	"fmt"
	"runtime"
)

// OS represents the operating system type.
type OS string

const (
	Windows OS = "windows"
	Darwin  OS = "darwin" // macOS
	Linux   OS = "linux"
	BSD     OS = "bsd"
)

// Platform holds detected information about the current platform.
type Platform struct {
	OS   OS
	Arch string
}

// Detect returns information about the current platform.
func Detect() (*Platform, error) {
	var osType OS
	switch runtime.GOOS {
	case "windows":
		osType = Windows
	case "darwin":
		osType = Darwin
	case "linux":
		osType = Linux
	case "freebsd", "openbsd", "netbsd", "dragonfly":
		osType = BSD
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	return &Platform{
		OS:   osType,
		Arch: runtime.GOARCH,
	}, nil
}

// Config holds platform-specific configuration defaults.
type Config struct {
	DefaultWatchDir        string
	ConfigDir              string
	DatabasePath           string
	DefaultExcludePatterns []string
}
