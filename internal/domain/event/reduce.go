package event

import "github.com/Strob0t/taskwatch/internal/domain/task"

// Reduce folds one decoded event into snap. It is pure: snap is not
// modified and the returned snapshot may share step memory with it.
func Reduce(snap task.Snapshot, ev Event) task.Snapshot {
	switch {
	case ev.Status != nil:
		return snap.ApplyStatusPatch(*ev.Status)
	case ev.Step != nil:
		return snap.ApplyStep(*ev.Step)
	}
	return snap
}
