package configuration

import "time"

const (
	DefaultProject = "pipeline"

	// A single allocation at a time unless the site raises the cap.
	DefaultMaxBlocks = 1

	DefaultBlockRetries = 3
	DefaultRetries      = 1

	DefaultMonitorInterval = 30 * time.Second
	DefaultMonitorFilename = "monitor.csv"

	DefaultSelectionAxis = "memory"
)
