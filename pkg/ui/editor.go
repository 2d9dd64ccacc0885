// Package ui is the interactive timeline editor. It drives an Editor
// (normally *session.Manager) and renders the event list, the selection
// and the current scores.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/session"
)

// Editor is the subset of session.Manager the editor needs.
type Editor interface {
	Get(ctx context.Context, id int64) (*session.Result, error)
	Merge(ctx context.Context, id int64, ids []int) (*session.Result, error)
	Split(ctx context.Context, id int64, eventID int, at float64) (*session.Result, error)
	Delete(ctx context.Context, id int64, ids []int) (*session.Result, error)
	Undo(ctx context.Context, id int64) (*session.Result, error)
	UndoAvailable(ctx context.Context, id int64) (bool, error)
}

type mode int

const (
	modeBrowse mode = iota
	modeSplit
)

// resultMsg carries the outcome of one editor call back into Update.
type resultMsg struct {
	op  string
	res *session.Result
	err error
}

// undoStateMsg refreshes the undo flag after a failed call. A failed edit
// still replaces the backup on disk, so the last result can be stale.
type undoStateMsg struct {
	available bool
}

// Model is the bubbletea model of the editor.
type Model struct {
	ctx    context.Context
	editor Editor
	id     int64
	theme  Theme

	res      *session.Result
	cursor   int
	selected map[int]bool // event ids
	mode     mode
	input    textinput.Model
	busy     bool

	status  string
	errCode model.ErrorCode

	width, height int
	quitting      bool
}

// NewModel returns an editor for session id. The session is loaded by Init.
func NewModel(ctx context.Context, ed Editor, id int64) Model {
	ti := textinput.New()
	ti.Placeholder = "seconds"
	ti.CharLimit = 16
	ti.Width = 12
	ti.Prompt = "split at: "

	return Model{
		ctx:      ctx,
		editor:   ed,
		id:       id,
		theme:    DefaultTheme(lipgloss.DefaultRenderer()),
		selected: make(map[int]bool),
		input:    ti,
		width:    100,
		height:   30,
	}
}

// Init loads the session.
func (m Model) Init() tea.Cmd {
	return m.call("load", func(ctx context.Context) (*session.Result, error) {
		return m.editor.Get(ctx, m.id)
	})
}

func (m Model) call(op string, fn func(ctx context.Context) (*session.Result, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		res, err := fn(ctx)
		return resultMsg{op: op, res: res, err: err}
	}
}

func (m Model) refreshUndo() tea.Cmd {
	ctx, ed, id := m.ctx, m.editor, m.id
	return func() tea.Msg {
		ok, err := ed.UndoAvailable(ctx, id)
		if err != nil {
			return nil
		}
		return undoStateMsg{available: ok}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.errCode = model.Code(msg.err)
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
			if m.res == nil {
				return m, nil
			}
			return m, m.refreshUndo()
		}
		m.errCode = ""
		m.res = msg.res
		m.selected = make(map[int]bool)
		m.clampCursor()
		if msg.op == "load" {
			m.status = fmt.Sprintf("loaded %d events", len(m.res.Events))
		} else {
			m.status = fmt.Sprintf("%s ok, version %d", msg.op, m.res.Version)
		}
		return m, nil

	case undoStateMsg:
		if m.res != nil && m.res.UndoAvailable != msg.available {
			res := *m.res
			res.UndoAvailable = msg.available
			m.res = &res
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode == modeSplit {
			return m.updateSplit(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.res != nil && m.cursor < len(m.res.Events)-1 {
			m.cursor++
		}
		return m, nil
	case "home", "g":
		m.cursor = 0
		return m, nil
	case "end", "G":
		if m.res != nil {
			m.cursor = max(0, len(m.res.Events)-1)
		}
		return m, nil
	}

	if m.busy {
		return m, nil
	}
	ev, ok := m.current()
	if !ok {
		return m, nil
	}

	switch msg.String() {
	case " ":
		if m.selected[ev.ID] {
			delete(m.selected, ev.ID)
		} else {
			m.selected[ev.ID] = true
		}
		if m.cursor < len(m.res.Events)-1 {
			m.cursor++
		}
	case "m":
		ids := m.selection()
		if len(ids) < 2 {
			m.status = "select at least two adjacent segments to merge"
			return m, nil
		}
		m.busy = true
		return m, m.call("merge", func(ctx context.Context) (*session.Result, error) {
			return m.editor.Merge(ctx, m.id, ids)
		})
	case "d", "x":
		ids := m.selection()
		if len(ids) == 0 {
			ids = []int{ev.ID}
		}
		m.busy = true
		return m, m.call("delete", func(ctx context.Context) (*session.Result, error) {
			return m.editor.Delete(ctx, m.id, ids)
		})
	case "s":
		m.mode = modeSplit
		m.input.SetValue(strconv.FormatFloat((ev.Start+ev.End)/2, 'f', 3, 64))
		m.input.CursorEnd()
		cmd := m.input.Focus()
		return m, cmd
	case "u":
		m.busy = true
		return m, m.call("undo", func(ctx context.Context) (*session.Result, error) {
			ok, err := m.editor.UndoAvailable(ctx, m.id)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("session %d: %w", m.id, model.ErrNoUndoAvailable)
			}
			return m.editor.Undo(ctx, m.id)
		})
	case "esc":
		m.selected = make(map[int]bool)
		m.status = "selection cleared"
	}
	return m, nil
}

func (m Model) updateSplit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.input.Blur()
		m.status = "split canceled"
		return m, nil
	case tea.KeyEnter:
		ev, ok := m.current()
		if !ok {
			m.mode = modeBrowse
			return m, nil
		}
		at, err := strconv.ParseFloat(strings.TrimSpace(m.input.Value()), 64)
		if err != nil {
			m.status = fmt.Sprintf("not a time: %q", m.input.Value())
			return m, nil
		}
		m.mode = modeBrowse
		m.input.Blur()
		m.busy = true
		return m, m.call("split", func(ctx context.Context) (*session.Result, error) {
			return m.editor.Split(ctx, m.id, ev.ID, at)
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) current() (model.Event, bool) {
	if m.res == nil || m.cursor < 0 || m.cursor >= len(m.res.Events) {
		return model.Event{}, false
	}
	return m.res.Events[m.cursor], true
}

// selection returns the marked event ids in timeline order.
func (m Model) selection() []int {
	ids := make([]int, 0, len(m.selected))
	if m.res == nil {
		return ids
	}
	for _, e := range m.res.Events {
		if m.selected[e.ID] {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

func (m *Model) clampCursor() {
	n := 0
	if m.res != nil {
		n = len(m.res.Events)
	}
	m.cursor = max(0, min(m.cursor, n-1))
}

// Quitting reports whether the user asked to leave.
func (m Model) Quitting() bool { return m.quitting }

// ErrCode is the code of the last failed call, empty after a success.
func (m Model) ErrCode() model.ErrorCode { return m.errCode }

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	t := m.theme
	header := t.Header.Render(fmt.Sprintf("session %d", m.id))
	if m.res == nil {
		return lipgloss.JoinVertical(lipgloss.Left, header, m.renderStatus())
	}
	header += t.MutedText.Render(fmt.Sprintf("  v%d  %d events  %d selected", m.res.Version, len(m.res.Events), len(m.selected)))

	scoresWidth := 34
	listWidth := max(30, m.width-scoresWidth-4)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		FocusedPanelStyle.Width(listWidth).Render(m.renderEvents(listWidth)),
		PanelStyle.Width(scoresWidth).Render(m.renderScores(scoresWidth)),
	)

	parts := []string{header, body}
	if m.mode == modeSplit {
		parts = append(parts, m.input.View())
	}
	parts = append(parts, m.renderStatus(), m.renderHelp())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderEvents(width int) string {
	t := m.theme
	rows := max(3, m.height-8)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(len(m.res.Events), start+rows)

	var sb strings.Builder
	for i := start; i < end; i++ {
		e := m.res.Events[i]
		mark := "  "
		if m.selected[e.ID] {
			mark = t.Marked.Render("● ")
		}
		line := fmt.Sprintf("%s#%-4d %s %10s → %-10s %8s",
			mark, e.ID, RenderEventBadge(string(e.Type)),
			formatSeconds(e.Start), formatSeconds(e.End), formatSeconds(e.Duration()))
		if i == m.cursor {
			line = t.Selected.Render(line)
		} else {
			line = " " + line
		}
		sb.WriteString(line)
		if i < end-1 {
			sb.WriteByte('\n')
		}
	}
	if len(m.res.Events) == 0 {
		sb.WriteString(t.MutedText.Render(truncateRunesHelper("timeline is empty", width, "…")))
	}
	return sb.String()
}

func (m Model) renderScores(width int) string {
	t := m.theme
	s := m.res.Scores
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", t.PrimaryBold.Render(fmt.Sprintf("overall %.1f", s.Overall)), RenderLevelBadge(s.Level))
	for _, name := range analysis.Pillars {
		v, ok := s.Pillars[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%s %s %5.1f\n", padRight(name, 7), RenderScoreBar(v, width-16), v)
	}
	fmt.Fprintf(&sb, "%d cycles  %.1f bpm  I:E %.2f\n", s.CycleCount, s.BreathsPerMin, s.MeanIERatio)
	if s.Recommendation != "" {
		sb.WriteString(t.MutedText.Render(truncateRunesHelper(s.Recommendation, width, "…")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) renderStatus() string {
	t := m.theme
	line := m.status
	if m.busy {
		line = "working…"
	}
	if m.errCode != "" {
		return t.ErrorText.Render(string(m.errCode)) + " " + t.MutedText.Render(truncateRunesHelper(line, m.width-len(m.errCode)-1, "…"))
	}
	return t.MutedText.Render(truncateRunesHelper(line, m.width, "…"))
}

func (m Model) renderHelp() string {
	if m.mode == modeSplit {
		return strings.Join([]string{RenderKeyHint("enter", "split"), RenderKeyHint("esc", "cancel")}, "  ")
	}
	undo := "undo"
	if m.res != nil && !m.res.UndoAvailable {
		undo = "undo (none)"
	}
	return strings.Join([]string{
		RenderKeyHint("↑↓", "move"),
		RenderKeyHint("space", "select"),
		RenderKeyHint("m", "merge"),
		RenderKeyHint("s", "split"),
		RenderKeyHint("d", "delete"),
		RenderKeyHint("u", undo),
		RenderKeyHint("q", "quit"),
	}, "  ")
}
