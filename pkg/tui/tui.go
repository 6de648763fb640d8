// Package tui provides a terminal user interface for xmiplay.
package tui

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/milesxmi/xmiseq/pkg/player"
	"github.com/milesxmi/xmiseq/pkg/sink"
)

var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)

	_ = silverGray
)

// State is the current screen.
type State int

const (
	StateFilePicker State = iota
	StatePlaying
	StateError
)

const sampleRate = 44100

// tickMsg drives the simulated playback clock: one message per UI refresh,
// carrying the wall-clock time it fired so Update can derive elapsed
// samples.
type tickMsg time.Time

// Model is the TUI's Bubble Tea model.
type Model struct {
	state        State
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	pl           *player.Player
	paused       bool
	err          error
	lastTick     time.Time
}

func (m Model) Init() tea.Cmd {
	if m.state == StatePlaying {
		return tea.Batch(m.spinner.Tick, tickCmd())
	}
	return tea.Batch(m.spinner.Tick, m.filePicker.Init())
}

// New creates the initial file-picker model.
func New() Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".xmi", ".xmid", ".mid"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		state:      StateFilePicker,
		filePicker: fp,
		spinner:    s,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			if keyMsg.String() == "q" || keyMsg.String() == "ctrl+c" {
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			return m.startPlayback()
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.pl != nil {
				m.pl.Close()
			}
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
			return m, nil
		case "esc":
			if m.pl != nil {
				m.pl.Close()
			}
			m.state = StateFilePicker
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state == StatePlaying && !m.paused && m.pl != nil {
			now := time.Time(msg)
			elapsed := now.Sub(m.lastTick)
			m.lastTick = now
			samples := uint64(elapsed.Seconds() * sampleRate)
			m.pl.Tick(samples)
			if !m.pl.Seq.IsLoaded() {
				m.paused = true
			}
		}
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) startPlayback() (tea.Model, tea.Cmd) {
	logger := log.New(os.Stderr, "", 0)
	pl, err := player.New(m.selectedFile, sampleRate, false, sink.NewLogger(logger), logger)
	if err != nil {
		m.err = err
		m.state = StateError
		return m, nil
	}
	m.pl = pl
	m.state = StatePlaying
	m.paused = false
	m.lastTick = time.Now()
	return m, tea.Batch(m.spinner.Tick, tickCmd())
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StatePlaying:
		s.WriteString(m.viewPlaying())
	case StateError:
		s.WriteString(m.viewError())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("space: pause/resume • esc: back • q: quit"))
	return s.String()
}

func (m Model) viewFilePicker() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(" SELECT XMI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	return s.String()
}

func (m Model) viewPlaying() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(" PLAYING "))
	s.WriteString("\n\n")

	state := m.pl.Seq.State()
	status := "playing"
	if m.paused {
		status = "paused"
	}
	if !state.Loaded {
		status = "stopped"
	}

	s.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), filepath.Base(m.selectedFile)))
	s.WriteString(statusStyle.Render(fmt.Sprintf("  %s — t=%.2fs  bpm=%.1f  ts=%d/%d",
		status, state.SongTime, state.TimeBase.BPM, state.TimeBase.TimeSigNum, state.TimeBase.TimeSigDen)))
	if drops := m.pl.Drops(); drops > 0 {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("  %d commands dropped (queue full)", drops)))
	}
	return boxStyle.Render(s.String())
}

func (m Model) viewError() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(" ERROR "))
	s.WriteString("\n\n")
	s.WriteString(errorStyle.Render(fmt.Sprintf("failed to load: %s", m.err.Error())))
	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
__  ___ __  __ ___ ____  _        _ __   __
\ \/ / |  \/  |_ _|  _ \| |      / \\ \ / /
 \  /  | |\/| || || |_) | |     / _ \\ V /
 /  \  | |  | || ||  __/| |___ / ___ \| |
/_/\_\ |_|  |_|___|_|   |_____/_/   \_\_|
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application. If path is non-empty, playback begins
// immediately instead of showing the file picker.
func Run(path string) error {
	m := New()
	if path == "" {
		p := tea.NewProgram(m, tea.WithAltScreen())
		_, err := p.Run()
		return err
	}
	m.selectedFile = path
	model, _ := m.startPlayback()
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
