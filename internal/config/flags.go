package config

import (
	"flag"
	"time"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-a server address in format [host]:[port]
//	-d database DSN (server)
//	-local-db sqlite file path (agent)
//	-sync-server-url base URL of the sync server (agent)
//	-sync-interval periodic sync interval (e.g., "5m")
//	-probe-interval connectivity probe interval (e.g., "15s")
//	-batch-size drain cycle batch size
//	-max-retries retry bound per queue item
//	-actor actor/device identifier recorded on conflicts
//	-admin-addr local admin API address (agent)
//	-request-timeout request timeout (e.g., "30s", "1m")
//	-c/-config json file path with configs
func ParseFlags() *StructuredConfig {
	var serverAddress string
	var databaseDSN string
	var localDBPath string
	var syncServerURL string
	var syncInterval time.Duration
	var probeInterval time.Duration
	var batchSize int
	var maxRetries int
	var actorID string
	var adminAddress string
	var requestTimeout time.Duration
	var jsonConfigPath string

	flag.StringVar(&serverAddress, "a", "", "Net address host:port")
	flag.StringVar(&databaseDSN, "d", "", "Database DSN")
	flag.StringVar(&localDBPath, "local-db", "", "Local sqlite database path")
	flag.StringVar(&syncServerURL, "sync-server-url", "", "Sync server base URL")
	flag.DurationVar(&syncInterval, "sync-interval", 0, "Periodic sync interval (e.g., 5m)")
	flag.DurationVar(&probeInterval, "probe-interval", 0, "Connectivity probe interval (e.g., 15s)")
	flag.IntVar(&batchSize, "batch-size", 0, "Drain cycle batch size")
	flag.IntVar(&maxRetries, "max-retries", 0, "Retry bound per queue item")
	flag.StringVar(&actorID, "actor", "", "Actor/device identifier")
	flag.StringVar(&adminAddress, "admin-addr", "", "Local admin API address")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")

	flag.Parse()

	return &StructuredConfig{
		Storage: Storage{
			ServerDB: ServerDB{DSN: databaseDSN},
			LocalDB:  LocalDB{Path: localDBPath},
		},
		Server: Server{
			HTTPAddress:    serverAddress,
			RequestTimeout: requestTimeout,
		},
		Sync: Sync{
			ServerURL:      syncServerURL,
			Interval:       syncInterval,
			ProbeInterval:  probeInterval,
			BatchSize:      batchSize,
			MaxRetries:     maxRetries,
			RequestTimeout: requestTimeout,
			ActorID:        actorID,
			AdminAddress:   adminAddress,
		},
		JSONFilePath: jsonConfigPath,
	}
}
