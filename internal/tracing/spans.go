package tracing

// Span attribute keys.
const (
	AttrToolName     = "mcp.tool.name"
	AttrCommand      = "worker.command"
	AttrCorrelation  = "worker.correlation_id"
	AttrWorkerPID    = "worker.pid"
	AttrTransport    = "voice.transport"
	AttrPreset       = "voice.preset"
	AttrErrorMessage = "error.message"
)

// Span name prefixes.
const (
	SpanPrefixTool    = "mcp.tool."
	SpanPrefixCommand = "worker.command."
	SpanWorkerStart   = "worker.start"
	SpanWorkerStop    = "worker.stop"
)

// Event names.
const (
	EventStaleSkipped  = "startup_error.skipped"
	EventOrphanDropped = "response.orphan_dropped"
	EventPollTimeout   = "response.poll_timeout"
)
