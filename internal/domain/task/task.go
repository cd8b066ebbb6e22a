// Package task defines the reconciled Task snapshot and its step merge rules.
package task

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the current state of a task as reported by the remote.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsFailed reports whether s is a failure status. Providers append the
// reason to the status ("failed: timeout"), so this matches by prefix.
func (s Status) IsFailed() bool {
	return strings.HasPrefix(string(s), string(StatusFailed))
}

// IsTerminal reports whether the remote will not move the task any further.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s.IsFailed()
}

// StepType identifies the kind of agent progress a step records.
type StepType string

const (
	StepThink  StepType = "think"
	StepTool   StepType = "tool"
	StepAct    StepType = "act"
	StepLog    StepType = "log"
	StepResult StepType = "result"
	StepError  StepType = "error"
)

// Valid reports whether t is part of the step vocabulary.
func (t StepType) Valid() bool {
	switch t {
	case StepThink, StepTool, StepAct, StepLog, StepResult, StepError:
		return true
	}
	return false
}

// Step is one unit of agent progress.
type Step struct {
	Index   int             `json:"step"`
	Type    StepType        `json:"type"`
	Payload json.RawMessage `json:"result,omitempty"`
}

// Key identifies the logical step. Two steps with the same key are the same
// step; the later one replaces the earlier.
type Key struct {
	Index int
	Type  StepType
}

// Key returns the identity of s.
func (s Step) Key() Key {
	return Key{Index: s.Index, Type: s.Type}
}

// Text returns the payload as display text. JSON strings are unquoted; any
// other JSON value is returned verbatim.
func (s Step) Text() string {
	if len(s.Payload) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(s.Payload, &str); err == nil {
		return str
	}
	return string(s.Payload)
}

// Snapshot is the reconciled view of a task.
//
// Steps is nil until the sequence has been initialized, either by the initial
// fetch or by a status frame that carries the full list. Busy is a live signal
// derived from the latest status update and is never read from the remote.
type Snapshot struct {
	ID        string                     `json:"id"`
	Prompt    string                     `json:"prompt"`
	Status    Status                     `json:"status"`
	CreatedAt *time.Time                 `json:"created_at,omitempty"`
	Steps     []Step                     `json:"steps"`
	Meta      map[string]json.RawMessage `json:"meta,omitempty"`
	Busy      bool                       `json:"-"`
}

// Clone returns a deep copy of s that shares no memory with it.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.CreatedAt != nil {
		t := *s.CreatedAt
		out.CreatedAt = &t
	}
	if s.Steps != nil {
		out.Steps = make([]Step, len(s.Steps))
		for i, st := range s.Steps {
			out.Steps[i] = st
			if st.Payload != nil {
				out.Steps[i].Payload = append(json.RawMessage(nil), st.Payload...)
			}
		}
	}
	if s.Meta != nil {
		out.Meta = make(map[string]json.RawMessage, len(s.Meta))
		for k, v := range s.Meta {
			out.Meta[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// StepsInitialized reports whether the step sequence exists.
func (s Snapshot) StepsInitialized() bool {
	return s.Steps != nil
}

// StatusPatch is the partial snapshot carried by a status frame. Nil fields
// were absent on the wire and are left alone by the merge.
type StatusPatch struct {
	Status *Status
	Prompt *string
	Steps  []Step
	// HasSteps distinguishes "steps": [] from an absent steps field.
	HasSteps bool
	Meta     map[string]json.RawMessage
}

// View is the form handed to renderers: the snapshot with its busy flag
// exposed. It is output only and is never decoded back into a Snapshot.
type View struct {
	Snapshot
	Busy bool `json:"busy"`
}

// View returns s with Busy exposed for encoding.
func (s Snapshot) View() View {
	return View{Snapshot: s, Busy: s.Busy}
}
