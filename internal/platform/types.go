// Package platform describes the host repomirror runs on.
//
// The description is exposed two ways: as a read-only "platform" table inside
// Lua configuration files, so a single config can pick per-OS data
// directories, and as the User-Agent sent to code hosts. Linux distribution
// details come from gopsutil and are best effort.
package platform

import "context"

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // normalized: "amd64", "arm64", or GOARCH as-is
	ArchRaw  string // original GOARCH
	Hostname string
	Distro   string // Linux only, e.g. "ubuntu"
	Family   string // Linux only, e.g. "debian"
	Version  string // Linux only, e.g. "22.04"
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
