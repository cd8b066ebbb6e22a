// Package terminal prints reconciled task snapshots to a terminal as an
// append-only progress log.
package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/broadcast"
)

// Options configures a Renderer.
type Options struct {
	MaxSteps int  // only the last MaxSteps steps are considered; 0 = all
	Color    bool // style output when w is a terminal
}

type styles struct {
	accent, success, errorS, warn, muted, faint, bold lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		accent:  r.NewStyle().Foreground(lipgloss.Color("99")),
		success: r.NewStyle().Foreground(lipgloss.Color("76")),
		errorS:  r.NewStyle().Foreground(lipgloss.Color("204")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("243")),
		faint:   r.NewStyle().Foreground(lipgloss.Color("238")),
		bold:    r.NewStyle().Bold(true),
	}
}

// Renderer is a broadcast.Sink that prints what changed between successive
// snapshots: the prompt once, status transitions, and new or replaced steps.
type Renderer struct {
	mu       sync.Mutex
	w        io.Writer
	st       styles
	width    int
	maxSteps int

	taskID      string
	prompt      string
	status      task.Status
	busy        bool
	statusShown bool
	seen        map[task.Key]string
}

// New creates a Renderer writing to w.
func New(w io.Writer, opts Options) *Renderer {
	lr := lipgloss.NewRenderer(w)
	width := 0
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil { //nolint:gosec // fd fits in int
			width = cols
		}
	}
	if !opts.Color {
		lr = lipgloss.NewRenderer(io.Discard)
	}
	return &Renderer{
		w:        w,
		st:       newStyles(lr),
		width:    width,
		maxSteps: opts.MaxSteps,
		seen:     make(map[task.Key]string),
	}
}

// Publish implements broadcast.Sink.
func (r *Renderer) Publish(_ context.Context, snap task.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	if snap.ID != r.taskID {
		r.reset(snap.ID)
		fmt.Fprintf(&b, "%s task %s\n", r.st.accent.Render("●"), r.st.bold.Render(snap.ID))
	}
	if snap.Prompt != "" && r.prompt == "" {
		r.prompt = snap.Prompt
		fmt.Fprintf(&b, "  %s %s\n", r.st.muted.Render("prompt:"), r.fit(snap.Prompt, 10))
	}
	if snap.Status != "" && (!r.statusShown || snap.Status != r.status || snap.Busy != r.busy) {
		r.status, r.busy, r.statusShown = snap.Status, snap.Busy, true
		b.WriteString("  " + r.statusLine(snap) + "\n")
	}

	steps := snap.Steps
	if r.maxSteps > 0 && len(steps) > r.maxSteps {
		steps = steps[len(steps)-r.maxSteps:]
	}
	for _, st := range steps {
		text := st.Text()
		prev, ok := r.seen[st.Key()]
		if ok && prev == text {
			continue
		}
		r.seen[st.Key()] = text
		marker := " "
		if ok {
			marker = "~"
		}
		fmt.Fprintf(&b, "  %s%s %s %s\n",
			marker,
			r.st.faint.Render(fmt.Sprintf("[%d]", st.Index)),
			r.stepStyle(st.Type).Render(fmt.Sprintf("%-6s", st.Type)),
			r.fit(text, 16),
		)
	}

	if b.Len() > 0 {
		_, _ = io.WriteString(r.w, b.String())
	}
}

// ReportFailure implements broadcast.FailureReporter.
func (r *Renderer) ReportFailure(_ context.Context, taskID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s task %s: %v\n", r.st.errorS.Render("✗"), taskID, err)
}

func (r *Renderer) reset(taskID string) {
	r.taskID = taskID
	r.prompt = ""
	r.status, r.busy, r.statusShown = "", false, false
	r.seen = make(map[task.Key]string)
}

func (r *Renderer) statusLine(snap task.Snapshot) string {
	label := r.st.muted.Render("status:")
	s := string(snap.Status)
	switch {
	case snap.Status == task.StatusCompleted:
		s = r.st.success.Render("✓ " + s)
	case snap.Status.IsFailed():
		s = r.st.errorS.Render("✗ " + s)
	case snap.Status == task.StatusRunning:
		s = r.st.warn.Render(s)
	default:
		s = r.st.muted.Render(s)
	}
	if snap.Busy {
		s += " " + r.st.muted.Render("(agent working)")
	}
	return label + " " + s
}

func (r *Renderer) stepStyle(t task.StepType) lipgloss.Style {
	switch t {
	case task.StepThink:
		return r.st.muted
	case task.StepTool:
		return r.st.accent
	case task.StepAct:
		return r.st.bold
	case task.StepResult:
		return r.st.success
	case task.StepError:
		return r.st.errorS
	default:
		return r.st.faint
	}
}

// fit keeps text on one line when writing to a terminal of known width.
// Other writers get the full text with continuation lines indented.
func (r *Renderer) fit(text string, indent int) string {
	if r.width <= 0 {
		return strings.ReplaceAll(text, "\n", "\n"+strings.Repeat(" ", indent))
	}
	line, _, multi := strings.Cut(text, "\n")
	room := r.width - indent
	if room < 8 {
		room = 8
	}
	runes := []rune(line)
	if len(runes) > room {
		return string(runes[:room-1]) + "…"
	}
	if multi {
		return line + " …"
	}
	return line
}

var (
	_ broadcast.Sink            = (*Renderer)(nil)
	_ broadcast.FailureReporter = (*Renderer)(nil)
)
