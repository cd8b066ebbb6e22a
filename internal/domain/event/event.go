// Package event defines task stream frames, their decoded form, and the pure
// reducer that folds decoded events into a task snapshot.
package event

import "github.com/Strob0t/taskwatch/internal/domain/task"

// Kind identifies the named event of a stream frame.
type Kind string

const (
	KindStatus Kind = "status"
	KindThink  Kind = "think"
	KindTool   Kind = "tool"
	KindAct    Kind = "act"
	KindLog    Kind = "log"
	KindResult Kind = "result"

	// Sent by the task backend: "error" carries either a step of type error
	// or a bare {"message": ...} failure notice; "complete" precedes a clean
	// end of stream.
	KindError    Kind = "error"
	KindComplete Kind = "complete"
)

// StepKinds lists the kinds whose frames carry a step record.
var StepKinds = []Kind{KindThink, KindTool, KindAct, KindLog, KindResult}

// IsStep reports whether frames of kind k carry a step record.
func (k Kind) IsStep() bool {
	switch k {
	case KindThink, KindTool, KindAct, KindLog, KindResult:
		return true
	}
	return false
}

// Frame is one raw frame read from the event stream.
type Frame struct {
	Kind Kind
	ID   string
	Data []byte
}

// Event is a decoded frame. Exactly one of Status, Step or Failure is set for
// status, step and failure kinds; Complete carries no payload.
type Event struct {
	Kind    Kind
	Status  *task.StatusPatch
	Step    *task.Step
	Failure *RemoteFailure
}

// RemoteFailure is a failure notice pushed by the remote on the stream.
type RemoteFailure struct {
	Message string `json:"message"`
}

func (f *RemoteFailure) Error() string {
	return "remote failure: " + f.Message
}
