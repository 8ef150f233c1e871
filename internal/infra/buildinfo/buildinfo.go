package buildinfo

// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/eyadof/Net-Async-Redis/internal/infra/buildinfo.Version=v1.0.0"

// LibName is the library name announced to the server via CLIENT SETINFO.
const LibName = "net-async-redis-go"

// Build-time variables (set via ldflags).
var (
	// Version is the semantic version.
	Version = "dev"

	// Commit is the git commit hash.
	Commit = "unknown"
)

// Info contains build information.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Get returns the build information.
func Get() Info {
	return Info{
		Name:    LibName,
		Version: Version,
		Commit:  Commit,
	}
}

// String returns a formatted version string.
func String() string {
	return LibName + " " + Version + " (" + Commit + ")"
}
