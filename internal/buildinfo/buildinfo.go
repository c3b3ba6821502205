// Package buildinfo holds release metadata injected at link time:
//
//	go build -ldflags "-X github.com/aidanlsb/herald/internal/buildinfo.Version=v1.0.0"
//
// The values are empty for local builds.
package buildinfo

var (
	Version = ""
	Commit  = ""
	Date    = ""
)
