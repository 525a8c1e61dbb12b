package coordinator

// MessageKind tags a worker message
type MessageKind string

const (
	// MessageStarted is sent when a worker begins collecting
	MessageStarted MessageKind = "started"
	// MessageProgress is sent for intermediate progress (optional)
	MessageProgress MessageKind = "progress"
	// MessageComplete is sent when a worker finishes successfully
	MessageComplete MessageKind = "complete"
	// MessageFailed is sent when a worker gives up
	MessageFailed MessageKind = "failed"
)

// WorkerMessage is the typed protocol between a collection worker and the
// coordinator. RequestTime is the logical timestamp the worker was spawned
// with; the coordinator ignores messages whose RequestTime does not match
// the in-flight record it is currently tracking.
type WorkerMessage struct {
	Kind        MessageKind
	ProjectHash string
	RequestTime int64
	Count       int
	Reason      string
}
