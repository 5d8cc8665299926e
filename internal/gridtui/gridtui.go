// Package gridtui is an interactive terminal viewer and editor for the marks
// grid. It renders only the rows and columns that fit the terminal and asks
// the coordinator to load that window whenever the viewport moves.
package gridtui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/tOgg1/gradebook/internal/events"
	"github.com/tOgg1/gradebook/internal/grid"
	"github.com/tOgg1/gradebook/internal/models"
)

const (
	defaultCellWidth = 7
	labelWidth       = 22
	chromeRows       = 4
	editTimeout      = 10 * time.Second
	defaultStatusTTL = 5 * time.Second

	minWindowWidth  = 60
	minWindowHeight = 12
)

// Config controls the grid viewer.
type Config struct {
	Theme       string
	CellWidth   int
	Title       string
	Students    []*models.Student
	Assessments []*models.Assessment
}

// Subscriber delivers coordinator events to the viewer.
type Subscriber interface {
	SubscribeFunc(filter events.Filter, handler events.EventHandler) (string, error)
	Unsubscribe(id string) error
}

// Run starts the viewer and blocks until it exits.
func Run(coord *grid.Coordinator, subscriber Subscriber, cfg Config) error {
	updates := make(chan struct{}, 1)
	ref, _ := coord.Context()
	id, err := subscriber.SubscribeFunc(events.Filter{
		EventTypes: []models.EventType{
			models.EventTypeTileLoaded,
			models.EventTypeTileFailed,
			models.EventTypeCellWritten,
			models.EventTypeCellWriteFailed,
			models.EventTypeBulkApplied,
		},
		MarkSet: ref.String(),
	}, func(*models.Event) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to grid events: %w", err)
	}
	defer subscriber.Unsubscribe(id)

	m := newModel(coord, cfg)
	m.updates = updates
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusErr
)

type bulkKind int

const (
	bulkNoMark bulkKind = iota
	bulkZero
	bulkFillDown
	bulkFillRight
)

type cellPos struct {
	row, col int
}

type gridUpdatedMsg struct{}

type editorOpenedMsg struct {
	row, col int
	value    models.Cell
	err      error
}

type editResultMsg struct {
	outcome grid.CellOutcome
	err     error
}

type bulkResultMsg struct {
	outcome *grid.BulkOutcome
	err     error
}

type model struct {
	coord   *grid.Coordinator
	updates <-chan struct{}
	styles  styles

	cellWidth   int
	title       string
	students    []*models.Student
	assessments []*models.Assessment

	width  int
	height int

	row, col  int
	top, left int
	anchor    *cellPos

	editing bool
	input   string
	busy    bool

	statusKind    statusKind
	statusText    string
	statusExpires time.Time
	quitting      bool
}

func newModel(coord *grid.Coordinator, cfg Config) model {
	cellWidth := cfg.CellWidth
	if cellWidth <= 0 {
		cellWidth = defaultCellWidth
	}
	return model{
		coord:       coord,
		styles:      newStyles(resolveTheme(cfg.Theme)),
		cellWidth:   cellWidth,
		title:       cfg.Title,
		students:    cfg.Students,
		assessments: cfg.Assessments,
	}
}

func (m model) Init() tea.Cmd {
	m.ensureVisible()
	return m.waitForUpdate()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scrollToCursor()
		m.ensureVisible()
		return m, nil
	case gridUpdatedMsg:
		if !m.statusExpires.IsZero() && time.Now().After(m.statusExpires) {
			m.statusText = ""
		}
		return m, m.waitForUpdate()
	case editorOpenedMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(statusErr, msg.err.Error())
			return m, nil
		}
		m.statusText = ""
		if msg.row != m.row || msg.col != m.col {
			return m, nil
		}
		m.editing = true
		m.input = msg.value.String()
		return m, nil
	case editResultMsg:
		m.busy = false
		if msg.err != nil {
			text := msg.err.Error()
			if msg.outcome.State == grid.CellDesyncResolved {
				text += " (cell re-read)"
			}
			m.setStatus(statusErr, text)
			return m, nil
		}
		m.setStatus(statusOK, fmt.Sprintf("saved (%d, %d) = %s", msg.outcome.Row, msg.outcome.Col, formatCell(msg.outcome.Value)))
		return m, nil
	case bulkResultMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(statusErr, msg.err.Error())
			return m, nil
		}
		m.anchor = nil
		kind := statusOK
		if msg.outcome.Rejected > 0 {
			kind = statusErr
		}
		m.setStatus(kind, msg.outcome.Summary())
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.editing {
			return m.updateEditMode(msg)
		}
		return m.updateMainMode(msg)
	}
	return m, nil
}

func (m model) updateMainMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		m.move(-1, 0)
	case "down", "j":
		m.move(1, 0)
	case "left", "h":
		m.move(0, -1)
	case "right", "l":
		m.move(0, 1)
	case "pgup":
		m.move(-m.visibleRows(), 0)
	case "pgdown":
		m.move(m.visibleRows(), 0)
	case "g", "home":
		m.move(-m.row, -m.col)
	case "G", "end":
		_, dims := m.coord.Context()
		m.move(dims.Rows-1-m.row, 0)
	case "esc":
		m.anchor = nil
		m.statusText = ""
	case "v":
		if m.anchor == nil {
			m.anchor = &cellPos{row: m.row, col: m.col}
		} else {
			m.anchor = nil
		}
	case "enter", "e":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.setStatus(statusInfo, "loading...")
		return m, m.openEditorCmd(m.row, m.col)
	case "backspace", "delete":
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.editCmd(m.row, m.col, "")
	case "x":
		return m.startBulk(bulkNoMark)
	case "z":
		return m.startBulk(bulkZero)
	case "D":
		return m.startBulk(bulkFillDown)
	case "R":
		return m.startBulk(bulkFillRight)
	default:
		if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 && isMarkRune(msg.Runes[0]) && !m.busy {
			m.editing = true
			m.input = string(msg.Runes)
		}
	}
	return m, nil
}

func (m model) updateEditMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.editing = false
		m.busy = true
		text := m.input
		m.input = ""
		return m, m.editCmd(m.row, m.col, text)
	case "esc":
		m.editing = false
		m.input = ""
	case "backspace":
		if runes := []rune(m.input); len(runes) > 0 {
			m.input = string(runes[:len(runes)-1])
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		}
	}
	return m, nil
}

func (m model) startBulk(kind bulkKind) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.setStatus(statusInfo, "applying...")
	return m, m.bulkCmd(kind, m.selection())
}

// openEditorCmd loads the tile holding the cell before the editor is seeded
// with its value.
func (m model) openEditorCmd(row, col int) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), editTimeout)
		defer cancel()
		value, err := coord.OpenEditor(ctx, row, col)
		return editorOpenedMsg{row: row, col: col, value: value, err: err}
	}
}

func (m model) editCmd(row, col int, text string) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), editTimeout)
		defer cancel()
		outcome, err := coord.SetCell(ctx, row, col, text)
		return editResultMsg{outcome: outcome, err: err}
	}
}

func (m model) bulkCmd(kind bulkKind, sel models.Window) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), editTimeout)
		defer cancel()

		if kind == bulkFillDown || kind == bulkFillRight {
			if err := coord.LoadWindow(ctx, sel, models.Dims{}); err != nil {
				return bulkResultMsg{err: err}
			}
		}

		var edits []models.PendingEdit
		var err error
		switch kind {
		case bulkNoMark:
			edits, err = coord.SetSelection(sel, grid.ActionNoMark, 0)
		case bulkZero:
			edits, err = coord.SetSelection(sel, grid.ActionZero, 0)
		case bulkFillDown:
			edits, err = coord.FillDown(sel)
		case bulkFillRight:
			edits, err = coord.FillRight(sel)
		}
		if err != nil {
			return bulkResultMsg{err: err}
		}
		outcome, err := coord.ApplyBulk(ctx, edits)
		return bulkResultMsg{outcome: outcome, err: err}
	}
}

// waitForUpdate turns the next coordinator event into a repaint.
func (m model) waitForUpdate() tea.Cmd {
	updates := m.updates
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return gridUpdatedMsg{}
	}
}

func (m *model) move(dr, dc int) {
	_, dims := m.coord.Context()
	if dims.Empty() {
		return
	}
	m.row = clamp(m.row+dr, 0, dims.Rows-1)
	m.col = clamp(m.col+dc, 0, dims.Cols-1)
	m.scrollToCursor()
	m.ensureVisible()
}

func (m *model) scrollToCursor() {
	rows, cols := m.visibleRows(), m.visibleCols()
	if m.row < m.top {
		m.top = m.row
	} else if m.row >= m.top+rows {
		m.top = m.row - rows + 1
	}
	if m.col < m.left {
		m.left = m.col
	} else if m.col >= m.left+cols {
		m.left = m.col - cols + 1
	}
}

func (m model) ensureVisible() {
	m.coord.EnsureWindowLoaded(context.Background(), m.viewport(), models.Dims{})
}

func (m model) viewport() models.Window {
	return models.Window{
		RowStart: m.top,
		RowCount: m.visibleRows(),
		ColStart: m.left,
		ColCount: m.visibleCols(),
	}
}

func (m model) selection() models.Window {
	if m.anchor == nil {
		return models.CellWindow(m.row, m.col)
	}
	r0, r1 := min(m.anchor.row, m.row), max(m.anchor.row, m.row)
	c0, c1 := min(m.anchor.col, m.col), max(m.anchor.col, m.col)
	return models.Window{RowStart: r0, RowCount: r1 - r0 + 1, ColStart: c0, ColCount: c1 - c0 + 1}
}

func (m model) visibleRows() int {
	return max(1, m.effectiveHeight()-chromeRows)
}

func (m model) visibleCols() int {
	return max(1, (m.effectiveWidth()-labelWidth)/(m.cellWidth+1))
}

func (m model) effectiveWidth() int {
	return max(m.width, minWindowWidth)
}

func (m model) effectiveHeight() int {
	return max(m.height, minWindowHeight)
}

func (m *model) setStatus(kind statusKind, text string) {
	m.statusKind = kind
	m.statusText = strings.TrimSpace(text)
	m.statusExpires = time.Now().Add(defaultStatusTTL)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	_, dims := m.coord.Context()
	view := m.viewport().Clamp(dims)
	sel := m.selection()
	snapshot := m.coord.Snapshot()
	diag := m.coord.Diagnostics()

	var b strings.Builder
	b.WriteString(m.styles.header.Render(fmt.Sprintf("%s  %dx%d  tiles %d loaded, %d loading",
		m.title, dims.Rows, dims.Cols, diag.LoadedTiles, diag.InflightTiles)))
	b.WriteString("\n")

	b.WriteString(strings.Repeat(" ", labelWidth))
	for col := view.ColStart; col < view.ColEnd(); col++ {
		title := fmt.Sprintf("#%d", col)
		locked := false
		if col < len(m.assessments) {
			title = m.assessments[col].Title
			locked = m.assessments[col].Locked
		}
		cell := " " + fit(title, m.cellWidth, false)
		if locked {
			b.WriteString(m.styles.locked.Render(cell))
		} else {
			b.WriteString(m.styles.header.Render(cell))
		}
	}
	b.WriteString("\n")

	for row := view.RowStart; row < view.RowEnd(); row++ {
		name := ""
		if row < len(m.students) {
			name = m.students[row].DisplayName
		}
		b.WriteString(m.styles.muted.Render(fmt.Sprintf("%4d ", row)))
		b.WriteString(fit(name, labelWidth-5, true))
		for col := view.ColStart; col < view.ColEnd(); col++ {
			b.WriteString(" ")
			b.WriteString(m.renderCell(snapshot.Cell(row, col), row, col, sel))
		}
		b.WriteString("\n")
	}

	switch {
	case m.editing:
		fmt.Fprintf(&b, "edit (%d, %d): %s_", m.row, m.col, m.input)
	case m.statusText != "":
		style := m.styles.muted
		switch m.statusKind {
		case statusOK:
			style = m.styles.ok
		case statusErr:
			style = m.styles.err
		}
		b.WriteString(style.Render(m.statusText))
	}
	b.WriteString("\n")
	b.WriteString(m.styles.muted.Render("arrows move  enter edit  del clear  v select  x no-mark  z zero  D/R fill  q quit"))
	return b.String()
}

func (m model) renderCell(c models.Cell, row, col int, sel models.Window) string {
	text := fit(formatCell(c), m.cellWidth, false)
	switch {
	case row == m.row && col == m.col:
		return m.styles.cursor.Render(text)
	case m.anchor != nil && sel.Contains(row, col):
		return m.styles.selection.Render(text)
	case c.IsNoMark():
		return m.styles.muted.Render(text)
	default:
		return text
	}
}

func formatCell(c models.Cell) string {
	if c.IsNoMark() {
		return "."
	}
	return c.String()
}

// fit truncates s to width display columns and pads it, on the right when
// left is set and on the left otherwise.
func fit(s string, width int, left bool) string {
	s = runewidth.Truncate(s, width, "~")
	if left {
		return runewidth.FillRight(s, width)
	}
	return runewidth.FillLeft(s, width)
}

func isMarkRune(r rune) bool {
	return (r >= '0' && r <= '9') || r == '.' || r == '-'
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
