package task

import "encoding/json"

// UpsertStep merges s into steps by identity. A step whose (Index, Type)
// matches an existing entry replaces it in place; anything else is appended.
//
// A nil steps slice means the sequence was never initialized. The upsert is
// then a no-op and returns nil, so a step racing ahead of the initial fetch
// cannot crash the reconciler.
func UpsertStep(steps []Step, s Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps), len(steps)+1)
	copy(out, steps)
	key := s.Key()
	for i := range out {
		if out[i].Key() == key {
			out[i] = s
			return out
		}
	}
	return append(out, s)
}

// ApplyStep returns a copy of s with step merged into its sequence.
// Status and Busy are untouched.
func (s Snapshot) ApplyStep(step Step) Snapshot {
	s.Steps = UpsertStep(s.Steps, step)
	return s
}

// ApplyStatusPatch shallow-merges p into s and recomputes Busy from the patch
// alone. Only a patch stating exactly "completed" clears Busy; failure
// variants and patches without a status set it.
func (s Snapshot) ApplyStatusPatch(p StatusPatch) Snapshot {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Prompt != nil && s.Prompt == "" {
		s.Prompt = *p.Prompt
	}
	if p.HasSteps {
		s.Steps = p.Steps
		if s.Steps == nil {
			s.Steps = []Step{}
		}
	}
	if len(p.Meta) > 0 {
		meta := make(map[string]json.RawMessage, len(s.Meta)+len(p.Meta))
		for k, v := range s.Meta {
			meta[k] = v
		}
		for k, v := range p.Meta {
			meta[k] = v
		}
		s.Meta = meta
	}
	s.Busy = p.Status == nil || *p.Status != StatusCompleted
	return s
}

// Seed merges the result of the initial fetch into s.
//
// The fetch races the live stream, so the seed only fills what the stream has
// not established yet: identity, prompt and creation time always; status only
// while s is still unset or pending; steps only while uninitialized. Busy is
// not a status event and is left alone.
func (s Snapshot) Seed(seed Snapshot) Snapshot {
	if s.ID == "" {
		s.ID = seed.ID
	}
	if s.Prompt == "" {
		s.Prompt = seed.Prompt
	}
	if s.CreatedAt == nil && seed.CreatedAt != nil {
		t := *seed.CreatedAt
		s.CreatedAt = &t
	}
	if (s.Status == "" || s.Status == StatusPending) && seed.Status != "" {
		s.Status = seed.Status
	}
	if s.Steps == nil {
		s.Steps = seed.Clone().Steps
		if s.Steps == nil {
			s.Steps = []Step{}
		}
	}
	if len(seed.Meta) > 0 {
		meta := make(map[string]json.RawMessage, len(s.Meta)+len(seed.Meta))
		for k, v := range seed.Meta {
			meta[k] = v
		}
		for k, v := range s.Meta {
			meta[k] = v
		}
		s.Meta = meta
	}
	return s
}
