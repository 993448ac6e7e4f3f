package platform

import (
	"fmt"
	"strings"
)

// UserAgent formats a User-Agent header such as
// "repomirror/1.2.0 (linux; amd64; ubuntu 22.04)". A nil info yields just
// product/version.
func UserAgent(product, version string, info *Info) string {
	if version == "" {
		version = "dev"
	}
	ua := fmt.Sprintf("%s/%s", product, version)
	if info == nil {
		return ua
	}

	parts := []string{info.OS, info.Arch}
	if info.IsLinux() && info.Distro != "" {
		parts = append(parts, strings.TrimSpace(info.Distro+" "+info.Version))
	}
	return fmt.Sprintf("%s (%s)", ua, strings.Join(parts, "; "))
}
