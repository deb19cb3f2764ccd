// Command maptimize-annotate runs a terminal demo of the annotation
// engine against the in-memory backend: draw and adjust boxes with the
// mouse, prompt segmentation with clicks, and export the overlay as a
// PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/michalprusek/maptimize-annotate/app"
	"github.com/michalprusek/maptimize-annotate/config"
	"github.com/michalprusek/maptimize-annotate/debug"
	"github.com/michalprusek/maptimize-annotate/domain/annotate"
	"github.com/michalprusek/maptimize-annotate/geom"
	"github.com/michalprusek/maptimize-annotate/store"
	"github.com/michalprusek/maptimize-annotate/ui/overlay"
)

func main() {
	cfgPath := flag.String("config", "annotate.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Printf("config: %v (using defaults)", err)
	}

	logFile, err := os.OpenFile("annotate.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatal(err)
	}
	defer logFile.Close()
	logger := NewLogger(logFile, cfg.Debug)

	if cfg.Debug {
		stop := make(chan struct{})
		defer close(stop)
		debug.StartRuntimeLogger(5*time.Second, logger, stop)
	}

	notify := &uiNotifier{}
	backend := store.NewMemStore(logger, 2*time.Second)
	container := app.BuildContainer(cfg, logger, backend, notify)
	defer container.Close()

	container.Session.SwitchImage(context.Background(), "demo-image", 1200, 900, nil, nil)

	p := tea.NewProgram(
		newModel(container.Session, notify),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}

// uiNotifier collects toast and inline messages for the status bar. The
// segmentation engine calls it from its own goroutines.
type uiNotifier struct {
	mu     sync.Mutex
	toast  string
	inline string
}

func (n *uiNotifier) Toast(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toast = msg
}

func (n *uiNotifier) InlineError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inline = msg
}

func (n *uiNotifier) take() (string, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.toast, n.inline
}

var (
	statusStyle   = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("231")).Padding(0, 1)
	toastStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	polyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("41"))
	markerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type tickMsg time.Time

type model struct {
	session *app.Session
	notify  *uiNotifier

	width  int
	height int

	textInput  bool
	textPrompt string

	dragging bool
}

func newModel(session *app.Session, notify *uiNotifier) model {
	return model{session: session, notify: notify}
}

func (m model) Init() tea.Cmd {
	return tick()
}

// tick drives redraws while asynchronous segmentation work completes.
func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tick()

	case tea.MouseMsg:
		m.handleMouse(ctx, msg)

	case tea.KeyMsg:
		if m.textInput {
			return m.updateTextInput(ctx, msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "v":
			m.session.SetMode(ctx, annotate.ModeView)
		case "d":
			m.session.SetMode(ctx, annotate.ModeDraw)
		case "s":
			m.session.SetMode(ctx, annotate.ModeSegment)
		case "u":
			m.session.Undo(ctx)
		case "x", "delete":
			m.session.Editor.DeleteSelected(ctx)
		case "r":
			m.session.Editor.ResetSelected()
		case "p":
			if err := m.session.Seg.AddPreviewToPending(); err != nil {
				m.notify.InlineError(err.Error())
			}
		case "m":
			go func() { _ = m.session.Seg.SaveMask(context.Background()) }()
		case "t":
			m.textInput = true
			m.textPrompt = ""
		case "e":
			if err := m.session.Export("annotate-export.png", 1200, 900); err != nil {
				m.notify.InlineError(err.Error())
			} else {
				m.notify.Toast("exported annotate-export.png")
			}
		case " ", "space":
			m.session.Pointer(ctx, annotate.SpaceChange{Held: true})
		case "esc":
			m.session.Pointer(ctx, annotate.SpaceChange{Held: false})
			m.session.Pointer(ctx, annotate.ShiftChange{Held: false})
		}
	}
	return m, nil
}

func (m model) updateTextInput(ctx context.Context, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		prompt := m.textPrompt
		m.textInput = false
		go func() { _ = m.session.Seg.TextQuery(context.Background(), prompt) }()
	case "esc":
		m.textInput = false
	case "backspace":
		if len(m.textPrompt) > 0 {
			m.textPrompt = m.textPrompt[:len(m.textPrompt)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.textPrompt += string(msg.Runes)
		}
	}
	return m, nil
}

// handleMouse maps terminal cells onto the canvas one to one. The top
// row is the status bar, so canvas Y is offset by one.
func (m *model) handleMouse(ctx context.Context, msg tea.MouseMsg) {
	pos := geom.Vec{X: float64(msg.X), Y: float64(msg.Y - 1)}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.session.Pointer(ctx, annotate.Wheel{Pos: pos, DeltaY: 1})
	case tea.MouseButtonWheelDown:
		m.session.Pointer(ctx, annotate.Wheel{Pos: pos, DeltaY: -1})
	case tea.MouseButtonLeft:
		switch msg.Action {
		case tea.MouseActionPress:
			m.dragging = true
			m.session.Pointer(ctx, annotate.PointerDown{Pos: pos, Button: annotate.ButtonLeft})
		case tea.MouseActionMotion:
			m.session.Pointer(ctx, annotate.PointerMove{Pos: pos})
		case tea.MouseActionRelease:
			m.dragging = false
			m.session.Pointer(ctx, annotate.PointerUp{Pos: pos})
		}
	case tea.MouseButtonRight:
		if msg.Action == tea.MouseActionPress {
			m.session.Pointer(ctx, annotate.PointerDown{Pos: pos, Button: annotate.ButtonRight})
		}
	case tea.MouseButtonNone:
		if msg.Action == tea.MouseActionMotion {
			m.session.Pointer(ctx, annotate.PointerMove{Pos: pos})
		}
	}
}

func (m model) View() string {
	if m.width == 0 || m.height < 3 {
		return "loading..."
	}
	frame := m.session.Frame()
	canvas := renderFrame(frame, m.width, m.height-2)

	var b strings.Builder
	b.WriteString(statusStyle.Render(m.statusLine(frame)))
	b.WriteString("\n")
	b.WriteString(canvas)
	b.WriteString("\n")
	b.WriteString(m.messageLine())
	return b.String()
}

func (m model) statusLine(frame *overlay.Frame) string {
	st := m.session.Editor.State()
	seg := m.session.Seg.Snapshot()
	mode := map[annotate.Mode]string{
		annotate.ModeView:    "VIEW",
		annotate.ModeDraw:    "DRAW",
		annotate.ModeSegment: "SEGMENT",
	}[st.Mode]
	line := fmt.Sprintf("%s  zoom %.2f  boxes %d  embedding %s",
		mode, st.Zoom, len(frame.Boxes), seg.Status)
	if frame.Loading {
		line += "  working..."
	}
	if m.textInput {
		line += "  prompt: " + m.textPrompt + "_"
	}
	return line
}

func (m model) messageLine() string {
	toast, inline := m.notify.take()
	if inline != "" {
		return errorStyle.Render(inline)
	}
	if toast != "" {
		return toastStyle.Render(toast)
	}
	return "v/d/s mode  drag draw  u undo  x delete  p keep preview  t text  m save mask  e export  q quit"
}

// renderFrame draws the overlay into a rune grid, one canvas unit per
// cell. Crude, but enough to watch the engine work.
func renderFrame(f *overlay.Frame, width, height int) string {
	grid := make([][]rune, height)
	styles := make([][]*lipgloss.Style, height)
	for y := range grid {
		grid[y] = make([]rune, width)
		styles[y] = make([]*lipgloss.Style, width)
		for x := range grid[y] {
			grid[y][x] = ' '
		}
	}

	set := func(x, y int, r rune, s *lipgloss.Style) {
		if x < 0 || y < 0 || x >= width || y >= height {
			return
		}
		grid[y][x] = r
		styles[y][x] = s
	}

	outline := func(r geom.Rect, s *lipgloss.Style) {
		x0, y0 := int(r.X), int(r.Y)
		x1, y1 := int(r.X+r.Width), int(r.Y+r.Height)
		for x := x0; x <= x1; x++ {
			set(x, y0, '─', s)
			set(x, y1, '─', s)
		}
		for y := y0; y <= y1; y++ {
			set(x0, y, '│', s)
			set(x1, y, '│', s)
		}
		set(x0, y0, '┌', s)
		set(x1, y0, '┐', s)
		set(x0, y1, '└', s)
		set(x1, y1, '┘', s)
	}

	for _, p := range f.Polygons {
		for _, pt := range p.Points {
			set(int(pt.X), int(pt.Y), '·', &polyStyle)
		}
	}
	for _, b := range f.Boxes {
		s := &boxStyle
		if b.Selected {
			s = &selectedStyle
		}
		outline(b.Rect, s)
		for _, h := range b.Handles {
			set(int(h.X), int(h.Y), '■', s)
		}
	}
	if f.Live != nil {
		outline(f.Live.Rect, &selectedStyle)
	}
	for _, mk := range f.Markers {
		r := '+'
		if !mk.Positive {
			r = '-'
		}
		set(int(mk.Pos.X), int(mk.Pos.Y), r, &markerStyle)
	}

	var b strings.Builder
	for y, row := range grid {
		if y > 0 {
			b.WriteString("\n")
		}
		for x, r := range row {
			if s := styles[y][x]; s != nil {
				b.WriteString(s.Render(string(r)))
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
