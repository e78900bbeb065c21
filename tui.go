package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"habla/audio"
	"habla/clipboard"
	"habla/log"
	"habla/pipeline"
	"habla/transcriber"
)

type eventsMsg []pipeline.Event
type closedMsg struct{ err error }
type tickMsg time.Time

type tuiModel struct {
	app     *app
	view    pipeline.View
	device  int
	model   int
	frame   int
	started time.Time
	closing bool
	note    string

	width, height int
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	btStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	buttonStyle  = lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.RoundedBorder())
	englishStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	spanishStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

func newTUIModel(a *app) tuiModel {
	m := tuiModel{app: a, view: pipeline.NewView()}
	if i := slices.Index(a.devices, a.cfg.Device); i >= 0 {
		m.device = i
	}
	if i := slices.Index(transcriber.ModelSizes, a.model); i >= 0 {
		m.model = i
	}
	return m
}

func (m tuiModel) deviceName() string {
	if len(m.app.devices) == 0 {
		return audio.DefaultDeviceName
	}
	return m.app.devices[m.device]
}

func (m tuiModel) modelSize() transcriber.ModelSize {
	return transcriber.ModelSizes[m.model]
}

func tuiTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) closeCmd() tea.Cmd {
	ctrl := m.app.ctrl
	return func() tea.Msg {
		return closedMsg{err: ctrl.Close()}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case eventsMsg:
		for _, e := range msg {
			if e.Kind == pipeline.EventState && e.State == pipeline.Recording && m.view.State != pipeline.Recording {
				m.started = time.Now()
			}
			m.view.Apply(e)
		}

	case closedMsg:
		if msg.err != nil {
			log.Warnf("close: %v", msg.err)
		}
		return m, tea.Quit

	case tea.KeyMsg:
		if m.closing {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.closing = true
			m.view.Status = "Closing..."
			return m, m.closeCmd()
		case " ", "enter":
			m.app.ctrl.Toggle(m.deviceName(), m.modelSize())
		case "d":
			if m.view.State == pipeline.Idle && len(m.app.devices) > 1 {
				m.device = (m.device + 1) % len(m.app.devices)
			}
		case "m":
			if m.view.State == pipeline.Idle {
				m.model = (m.model + 1) % len(transcriber.ModelSizes)
			}
		case "c":
			m.note = copyNote(m.view.Text)
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	recording := m.view.State == pipeline.Recording

	var head []string
	head = append(head, titleStyle.Render("habla  English > Spanish"), "")

	dev := valueStyle.Render(m.deviceName())
	if audio.IsBluetooth(m.deviceName()) {
		dev += btStyle.Render(" (BT!)")
	}
	head = append(head, labelStyle.Render("mic:   ")+dev)
	head = append(head, labelStyle.Render("model: ")+valueStyle.Render(string(m.modelSize())))
	head = append(head, "")

	var state string
	if recording {
		elapsed := time.Since(m.started).Round(time.Second)
		dot := "●"
		if m.frame%2 == 1 {
			dot = " "
		}
		state = recStyle.Render(fmt.Sprintf("%s REC %s", dot, elapsed))
	} else {
		state = idleStyle.Render("○ STANDBY")
	}
	status := valueStyle.Render(m.view.Status)
	if strings.HasPrefix(m.view.Status, "Error") {
		status = errorStyle.Render(m.view.Status)
	}
	line := state + "  " + status
	if m.note != "" {
		line += labelStyle.Render("  " + m.note)
	}
	head = append(head, line)
	head = append(head, buttonStyle.Render(m.view.Button))

	help := helpKeyStyle.Render("space") + helpStyle.Render(" start/stop  ") +
		helpKeyStyle.Render("d") + helpStyle.Render(" mic  ") +
		helpKeyStyle.Render("m") + helpStyle.Render(" model  ") +
		helpKeyStyle.Render("c") + helpStyle.Render(" copy last  ") +
		helpKeyStyle.Render("q") + helpStyle.Render(" quit  ") +
		helpStyle.Render(version)

	room := m.height - len(head) - 4 - 2
	if room < 1 {
		room = 1
	}
	body := renderTranscript(m.view.Text, m.width-2, room)

	return lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(head, "\n"),
		"",
		body,
		"",
		help,
	)
}

func copyNote(text string) string {
	ok, err := clipboard.CopyLast(text)
	switch {
	case err != nil:
		log.Warnf("clipboard: %v", err)
		return "clipboard: " + err.Error()
	case !ok:
		return "nothing to copy"
	default:
		return "[copied]"
	}
}

// renderTranscript wraps text to width and keeps the last height rows.
func renderTranscript(text string, width, height int) string {
	var rows []string
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		style := lipgloss.NewStyle()
		switch {
		case strings.HasPrefix(line, "English: "):
			style = englishStyle
		case strings.HasPrefix(line, "Spanish: "):
			style = spanishStyle
		case strings.HasPrefix(line, "---"):
			style = labelStyle
		}
		for _, w := range wrapText(line, width) {
			rows = append(rows, style.Render(w))
		}
	}
	if len(rows) > height {
		rows = rows[len(rows)-height:]
	}
	return strings.Join(rows, "\n")
}

// wrapText breaks text at spaces so no row is wider than width terminal
// cells. Words longer than a row are split between runes.
func wrapText(text string, width int) []string {
	width = max(width, 1)
	var (
		lines []string
		cur   strings.Builder
		curW  int
	)
	flush := func() {
		lines = append(lines, cur.String())
		cur.Reset()
		curW = 0
	}
	for _, word := range strings.Fields(text) {
		if curW > 0 && curW+1+ansi.StringWidth(word) > width {
			flush()
		}
		if curW > 0 {
			cur.WriteByte(' ')
			curW++
		}
		for _, r := range word {
			rw := ansi.StringWidth(string(r))
			if curW > 0 && curW+rw > width {
				flush()
			}
			cur.WriteRune(r)
			curW += rw
		}
	}
	if curW > 0 || len(lines) == 0 {
		flush()
	}
	return lines
}

// pumpEvents forwards queued controller events to the program. Send blocks
// until Update runs, so this must never be called from inside Update.
func pumpEvents(p *tea.Program, q *pipeline.Queue, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-q.Notify():
			if evs := q.Drain(); len(evs) > 0 {
				p.Send(eventsMsg(evs))
			}
		}
	}
}

func runTUI(a *app, q *pipeline.Queue, sigs <-chan os.Signal) error {
	p := tea.NewProgram(newTUIModel(a), tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)
	go pumpEvents(p, q, done)
	go func() {
		select {
		case <-sigs:
			log.Info("signal received, closing")
			p.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
		case <-done:
		}
	}()

	_, err := p.Run()
	// Program exits through closeCmd; make sure the session is closed even
	// when it ends some other way.
	a.ctrl.Close()
	return err
}
