package context

type Key string

const (
	Identity Key = "identity"
	Params   Key = "params"
	TraceID  Key = "trace_id"
)
