package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readability
var (
	DB                 string // connection string for the archive database (empty disables archiving)
	NatsURL            string // URL of the NATS server used for event publishing (empty disables)
	WaitForServices    string // duration to wait for other services to be ready
	LogLevel           string // sets the log level (zap log level values)
	SQLLogLevel        string // sets the log level for sql subsystem
	LogFormat          string // text vs json
	LogFilter          string // zapfilter rules, e.g. "debug:racing.* info:*"
	MigrationSourceURL string // location of migration files (empty uses embedded)
	ProfilingPort      int    // port for profiling
	APIAddr            string // listen addr for the HTTP API
	BlockInterval      string // duration between simulated chain heights
	ChainSeed          string // hex genesis seed for the simulated chain
)
