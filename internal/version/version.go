// Package version carries build information stamped in with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/sketchduel/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/sketchduel/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/sketchduel/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"     // Semantic version
	Commit    = "unknown" // Short git hash
	BuildTime = "unknown" // UTC, ISO 8601
)

// String returns the version with commit and build time for display.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent identifies the client to the game server, e.g.
// "sketchduel/1.0.0 (abc1234)".
func UserAgent() string {
	return "sketchduel/" + Version + " (" + Commit + ")"
}
