package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/taskwatch/internal/domain"
	"github.com/Strob0t/taskwatch/internal/domain/task"
)

// ErrUnknownKind is returned for frames whose kind the decoder does not
// recognize. Callers skip such frames; they are not decode failures.
var ErrUnknownKind = errors.New("unknown event kind")

// DecodeError describes a frame that could not be decoded.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame: %v", e.Kind, e.Err)
}

// Unwrap exposes both the cause and domain.ErrDecode to errors.Is.
func (e *DecodeError) Unwrap() []error {
	return []error{domain.ErrDecode, e.Err}
}

// Field aliases tolerated on the wire, in order of precedence.
var (
	indexFields   = []string{"step", "stepIndex", "step_index"}
	typeFields    = []string{"type", "stepType", "step_type"}
	payloadFields = []string{"result", "payload"}
)

// Top-level snapshot fields that are not collected into Meta.
var reservedFields = map[string]bool{
	"id": true, "type": true, "status": true, "prompt": true,
	"steps": true, "created_at": true,
}

// snapshotKind labels decode errors of a fetched snapshot body.
const snapshotKind Kind = "snapshot"

// Decode turns one raw frame into a typed event. It has no side effects.
func Decode(f Frame) (Event, error) {
	switch {
	case f.Kind == KindStatus:
		obj, err := object(f)
		if err != nil {
			return Event{}, err
		}
		patch, err := decodePatch(obj)
		if err != nil {
			return Event{}, &DecodeError{Kind: f.Kind, Err: err}
		}
		return Event{Kind: f.Kind, Status: &patch}, nil

	case f.Kind.IsStep():
		obj, err := object(f)
		if err != nil {
			return Event{}, err
		}
		st, err := decodeStep(obj, task.StepType(f.Kind))
		if err != nil {
			return Event{}, &DecodeError{Kind: f.Kind, Err: err}
		}
		return Event{Kind: f.Kind, Step: &st}, nil

	case f.Kind == KindError:
		obj, err := object(f)
		if err != nil {
			return Event{}, err
		}
		if hasAny(obj, indexFields) {
			st, err := decodeStep(obj, task.StepError)
			if err != nil {
				return Event{}, &DecodeError{Kind: f.Kind, Err: err}
			}
			return Event{Kind: f.Kind, Step: &st}, nil
		}
		var failure RemoteFailure
		if err := json.Unmarshal(f.Data, &failure); err != nil {
			return Event{}, &DecodeError{Kind: f.Kind, Err: err}
		}
		return Event{Kind: f.Kind, Failure: &failure}, nil

	case f.Kind == KindComplete:
		return Event{Kind: f.Kind}, nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
}

// DecodeSnapshot parses a task snapshot body as returned by the tasks API,
// with the same field tolerance as the stream decoder.
func DecodeSnapshot(data []byte) (task.Snapshot, error) {
	obj, err := object(Frame{Kind: snapshotKind, Data: data})
	if err != nil {
		return task.Snapshot{}, err
	}
	var snap task.Snapshot
	if raw, ok := obj["id"]; ok {
		if err := json.Unmarshal(raw, &snap.ID); err != nil {
			return task.Snapshot{}, &DecodeError{Kind: snapshotKind, Err: fmt.Errorf("id: %w", err)}
		}
	}
	patch, err := decodePatch(obj)
	if err != nil {
		return task.Snapshot{}, &DecodeError{Kind: snapshotKind, Err: err}
	}
	if patch.Status != nil {
		snap.Status = *patch.Status
	}
	if patch.Prompt != nil {
		snap.Prompt = *patch.Prompt
	}
	if patch.HasSteps {
		snap.Steps = patch.Steps
		if snap.Steps == nil {
			snap.Steps = []task.Step{}
		}
	}
	snap.Meta = patch.Meta
	if raw, ok := obj["created_at"]; ok {
		snap.CreatedAt = parseTime(raw)
	}
	return snap, nil
}

func object(f Frame) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(f.Data, &obj); err != nil {
		return nil, &DecodeError{Kind: f.Kind, Err: err}
	}
	if obj == nil {
		return nil, &DecodeError{Kind: f.Kind, Err: errors.New("body is not a JSON object")}
	}
	return obj, nil
}

func decodePatch(obj map[string]json.RawMessage) (task.StatusPatch, error) {
	var p task.StatusPatch
	if raw, ok := obj["status"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return p, fmt.Errorf("status: %w", err)
		}
		st := task.Status(s)
		p.Status = &st
	}
	if raw, ok := obj["prompt"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return p, fmt.Errorf("prompt: %w", err)
		}
		p.Prompt = &s
	}
	if raw, ok := obj["steps"]; ok && !isNull(raw) {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return p, fmt.Errorf("steps: %w", err)
		}
		p.HasSteps = true
		p.Steps = make([]task.Step, 0, len(items))
		for i, item := range items {
			st, err := decodeStep(item, "")
			if err != nil {
				return p, fmt.Errorf("steps[%d]: %w", i, err)
			}
			p.Steps = task.UpsertStep(p.Steps, st)
		}
	}
	for k, v := range obj {
		if reservedFields[k] {
			continue
		}
		if p.Meta == nil {
			p.Meta = make(map[string]json.RawMessage)
		}
		p.Meta[k] = v
	}
	return p, nil
}

// decodeStep reads a step record. implied is the type given by the frame
// kind; a type stated in the payload wins.
func decodeStep(obj map[string]json.RawMessage, implied task.StepType) (task.Step, error) {
	var st task.Step

	raw, ok := first(obj, indexFields)
	if !ok {
		return st, errors.New("missing step index")
	}
	idx, err := parseIndex(raw)
	if err != nil {
		return st, err
	}
	st.Index = idx

	st.Type = implied
	if raw, ok := first(obj, typeFields); ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return st, fmt.Errorf("step type: %w", err)
		}
		if s != "" {
			st.Type = task.StepType(s)
		}
	}
	if st.Type == "" {
		return st, errors.New("missing step type")
	}

	if raw, ok := first(obj, payloadFields); ok {
		st.Payload = append(json.RawMessage(nil), raw...)
	}
	return st, nil
}

// parseIndex reads a step index. Producers send it as a JSON number or as a
// numeric string; both identify the same step.
func parseIndex(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var str string
		if json.Unmarshal(raw, &str) != nil {
			return 0, fmt.Errorf("step index: %w", err)
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(str), 64); err != nil {
			return 0, fmt.Errorf("step index %q is not a number", str)
		}
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("step index %v is not a non-negative integer", f)
	}
	return int(f), nil
}

func first(obj map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func hasAny(obj map[string]json.RawMessage, keys []string) bool {
	_, ok := first(obj, keys)
	return ok
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseTime accepts RFC 3339 as well as the zone-less ISO form some
// backends emit. Unparseable values are dropped rather than failing the
// whole snapshot.
func parseTime(raw json.RawMessage) *time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
