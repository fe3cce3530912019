package version

import "fmt"

// overwritten by build via ldflags
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

var FullVersion = fmt.Sprintf("%s (%s) built %s", Version, GitCommit, BuildDate)
