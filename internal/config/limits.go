package config

const (
	// MaxAgentIDLength is the maximum length of an agent ID. Matches
	// the ID grammar (one leading alphanumeric plus up to 63 more
	// characters) so IDs stay usable in URLs and log lines.
	MaxAgentIDLength = 64

	// MaxSessionNameLength is the maximum length of a session name.
	// Same grammar as agent IDs for consistency.
	MaxSessionNameLength = 64

	// MaxSendContentBytes is the maximum size of one user turn
	// submission. Well under the RPC body cap so the JSON envelope
	// never pushes a valid submission over the transport limit.
	MaxSendContentBytes = 256 * 1024

	// MaxSystemPromptBytes is the maximum size of an agent's system
	// prompt, set at create_agent time.
	MaxSystemPromptBytes = 64 * 1024

	// LogFilesKept is how many timestamped log files survive the
	// startup cleanup.
	LogFilesKept = 10
)
