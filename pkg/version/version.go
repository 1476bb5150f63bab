package version

// Set at build time with -ldflags "-X github.com/cfoust/avalon/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
