package consts

import "time"

// Worker limits
const (
	// DefaultMaxWorkers is the maximum number of concurrently live workers
	DefaultMaxWorkers = 8
	// DefaultMaxDepth is the maximum recursion depth for nested worker spawning (root = 0)
	DefaultMaxDepth = 3
	// MaxFinishedRecords caps how many reaped workers keep their final status queryable
	MaxFinishedRecords = 1024
)

// Wait behavior
const (
	// WaitPollInterval is the default snapshot interval for streaming waits
	WaitPollInterval = 1 * time.Second
	// MinWaitPollInterval is the floor for caller-supplied poll intervals
	MinWaitPollInterval = 250 * time.Millisecond
	// MaxWaitTimeout is the administrative cap on any single wait call
	MaxWaitTimeout = 4 * time.Hour
)

// Approval prompts
const (
	// DefaultApprovalTimeout is how long an unanswered confirmation waits before denial
	DefaultApprovalTimeout = 2 * time.Minute
	// MaxPromptCommandLength caps the command text shown in a confirmation dialog
	MaxPromptCommandLength = 160
	// MaxPromptErrorLength caps the error text shown in a confirmation dialog
	MaxPromptErrorLength = 600
)

// Command execution
const (
	// KillGracePeriod is the delay between SIGTERM and SIGKILL when tearing down a child
	KillGracePeriod = 5 * time.Second
	// DefaultMaxOutputBytes limits captured stdout/stderr per stream
	DefaultMaxOutputBytes = 10 * 1024 * 1024
)

// Failure classification
const (
	// MaxEvidenceLength caps the evidence line attached to a classification
	MaxEvidenceLength = 200
)
