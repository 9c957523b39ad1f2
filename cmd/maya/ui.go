package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	conversation "github.com/mayavoice/maya-core/core"
	"github.com/mayavoice/maya-core/core/settings"
)

type statusMsg conversation.Status

type transcriptMsg []conversation.TranscriptEntry

type errorMsg struct{ err *conversation.Error }

type logMsg string

type theme struct {
	header      lipgloss.Style
	status      map[conversation.Status]lipgloss.Style
	speakerUser lipgloss.Style
	speakerBot  lipgloss.Style
	speakerSys  lipgloss.Style
	actionOK    lipgloss.Style
	actionFail  lipgloss.Style
	errBanner   lipgloss.Style
	footer      lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	muted       lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("#7aa2f7")
	green := lipgloss.Color("#9ece6a")
	yellow := lipgloss.Color("#e0af68")
	red := lipgloss.Color("#f7768e")
	grey := lipgloss.Color("#565f89")

	return theme{
		header: lipgloss.NewStyle().Bold(true).Foreground(accent),
		status: map[conversation.Status]lipgloss.Style{
			conversation.StatusIdle:       lipgloss.NewStyle().Foreground(grey),
			conversation.StatusConnecting: lipgloss.NewStyle().Foreground(yellow),
			conversation.StatusListening:  lipgloss.NewStyle().Foreground(green),
			conversation.StatusProcessing: lipgloss.NewStyle().Foreground(yellow),
			conversation.StatusSpeaking:   lipgloss.NewStyle().Foreground(accent),
			conversation.StatusError:      lipgloss.NewStyle().Foreground(red).Bold(true),
		},
		speakerUser: lipgloss.NewStyle().Foreground(green).Bold(true),
		speakerBot:  lipgloss.NewStyle().Foreground(accent).Bold(true),
		speakerSys:  lipgloss.NewStyle().Foreground(yellow).Bold(true),
		actionOK:    lipgloss.NewStyle().Foreground(green),
		actionFail:  lipgloss.NewStyle().Foreground(red),
		errBanner: lipgloss.NewStyle().
			Foreground(red).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(red).
			Padding(0, 1),
		footer: lipgloss.NewStyle().Foreground(grey),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(grey).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Bold(true).Foreground(accent),
		muted:      lipgloss.NewStyle().Foreground(grey),
	}
}

var statusLabels = map[conversation.Status]string{
	conversation.StatusIdle:       "Idle",
	conversation.StatusConnecting: "Connecting",
	conversation.StatusListening:  "Listening",
	conversation.StatusProcessing: "Thinking",
	conversation.StatusSpeaking:   "Speaking",
	conversation.StatusError:      "Error",
}

func statusLabel(status conversation.Status) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

const (
	fieldInstruction = iota
	fieldKnowledge
	fieldToken
	fieldCount
)

type model struct {
	controller *conversation.Controller
	store      *settingsStore

	status  conversation.Status
	entries []conversation.TranscriptEntry
	lastErr *conversation.Error
	logs    []string

	transcript viewport.Model
	logPane    viewport.Model
	showLogs   bool

	editing     bool
	draft       settings.Settings
	instruction textarea.Model
	knowledge   textarea.Model
	token       textinput.Model
	focus       int

	width  int
	height int
	theme  theme
}

func newModel(controller *conversation.Controller, store *settingsStore) model {
	instruction := textarea.New()
	instruction.Placeholder = "System instruction"
	instruction.SetHeight(5)

	knowledge := textarea.New()
	knowledge.Placeholder = "Knowledge base (optional)"
	knowledge.SetHeight(5)

	token := textinput.New()
	token.Placeholder = "Webhook bearer token (optional)"
	token.EchoMode = textinput.EchoPassword

	return model{
		controller:  controller,
		store:       store,
		status:      conversation.StatusIdle,
		transcript:  viewport.New(0, 0),
		logPane:     viewport.New(0, 0),
		instruction: instruction,
		knowledge:   knowledge,
		token:       token,
		theme:       newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) startCmd() tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		// Failures surface through the error callback.
		_ = controller.Start(context.Background())
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case statusMsg:
		m.status = conversation.Status(msg)
		return m, nil

	case transcriptMsg:
		m.entries = msg
		m.renderTranscript()
		return m, nil

	case errorMsg:
		m.lastErr = msg.err
		return m, nil

	case logMsg:
		m.logs = append(m.logs, string(msg))
		if len(m.logs) > 100 {
			m.logs = m.logs[len(m.logs)-100:]
		}
		m.renderLogs()
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateSettings(msg)
		}
		return m.updateMain(msg)
	}

	return m, nil
}

func (m model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "s":
		if m.status == conversation.StatusIdle || m.status == conversation.StatusError {
			return m, m.startCmd()
		}
		m.controller.Stop()
		return m, nil

	case "m":
		m.controller.SetMuted(!m.controller.Muted())
		return m, nil

	case "o":
		m.controller.SetOutputMuted(!m.controller.OutputMuted())
		return m, nil

	case "c":
		m.controller.ClearTranscript()
		return m, nil

	case "x":
		m.lastErr = nil
		m.controller.DismissError()
		return m, nil

	case "d":
		m.showLogs = !m.showLogs
		m.resize()
		return m, nil

	case "e":
		if m.status == conversation.StatusIdle || m.status == conversation.StatusError {
			m.openSettings()
		}
		return m, nil

	case "up", "k":
		m.transcript.LineUp(1)
		return m, nil

	case "down", "j":
		m.transcript.LineDown(1)
		return m, nil
	}

	return m, nil
}

func (m *model) openSettings() {
	m.editing = true
	m.draft = m.store.get()
	m.instruction.SetValue(m.draft.SystemInstruction)
	m.knowledge.SetValue(m.draft.KnowledgeBase)
	m.token.SetValue(m.draft.WebhookToken)
	m.focus = fieldInstruction
	m.applyFocus()
}

func (m *model) applyFocus() {
	m.instruction.Blur()
	m.knowledge.Blur()
	m.token.Blur()
	switch m.focus {
	case fieldInstruction:
		m.instruction.Focus()
	case fieldKnowledge:
		m.knowledge.Focus()
	case fieldToken:
		m.token.Focus()
	}
}

func (m model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		return m, nil

	case "tab":
		m.focus = (m.focus + 1) % fieldCount
		m.applyFocus()
		return m, nil

	case "shift+tab":
		m.focus = (m.focus + fieldCount - 1) % fieldCount
		m.applyFocus()
		return m, nil

	case "ctrl+s":
		m.draft.SystemInstruction = m.instruction.Value()
		m.draft.KnowledgeBase = m.knowledge.Value()
		m.draft.WebhookToken = m.token.Value()
		m.store.set(m.draft)
		m.editing = false
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case fieldInstruction:
		m.instruction, cmd = m.instruction.Update(msg)
	case fieldKnowledge:
		m.knowledge, cmd = m.knowledge.Update(msg)
	case fieldToken:
		m.token, cmd = m.token.Update(msg)
	}
	return m, cmd
}

func (m *model) resize() {
	contentWidth := max(m.width-4, 20)
	transcriptHeight := max(m.height-7, 5)
	if m.showLogs {
		logHeight := max(transcriptHeight/3, 3)
		transcriptHeight -= logHeight + 2
		m.logPane.Width = contentWidth
		m.logPane.Height = logHeight
	}
	m.transcript.Width = contentWidth
	m.transcript.Height = transcriptHeight
	m.instruction.SetWidth(contentWidth)
	m.knowledge.SetWidth(contentWidth)
	m.token.Width = contentWidth
	m.renderTranscript()
	m.renderLogs()
}

func (m *model) renderTranscript() {
	width := max(m.transcript.Width, 20)

	var b strings.Builder
	for _, entry := range m.entries {
		b.WriteString(m.renderEntry(entry, width))
		b.WriteString("\n")
	}
	atBottom := m.transcript.AtBottom()
	m.transcript.SetContent(b.String())
	if atBottom {
		m.transcript.GotoBottom()
	}
}

func (m *model) renderEntry(entry conversation.TranscriptEntry, width int) string {
	var label string
	switch entry.Speaker {
	case conversation.SpeakerUser:
		label = m.theme.speakerUser.Render("You")
	case conversation.SpeakerModel:
		label = m.theme.speakerBot.Render("Maya")
	default:
		label = m.theme.speakerSys.Render("System")
	}

	text := wordwrap.String(entry.Text, width)
	if entry.ActionID != "" {
		switch entry.ActionStatus {
		case conversation.ActionSuccess:
			text += " " + m.theme.actionOK.Render("[done]")
		case conversation.ActionFailure:
			text += " " + m.theme.actionFail.Render("[failed]")
		default:
			text += " " + m.theme.muted.Render("[running...]")
		}
	}
	return fmt.Sprintf("%s %s", label, text)
}

func (m *model) renderLogs() {
	if !m.showLogs {
		return
	}
	m.logPane.SetContent(strings.Join(m.logs, "\n"))
	m.logPane.GotoBottom()
}

func (m model) View() string {
	if m.editing {
		return m.viewSettings()
	}

	var sections []string
	sections = append(sections, m.viewHeader())
	sections = append(sections, m.theme.panel.Render(m.transcript.View()))
	if m.showLogs {
		sections = append(sections,
			m.theme.panelTitle.Render("Logs"),
			m.theme.panel.Render(m.logPane.View()),
		)
	}
	if m.lastErr != nil {
		sections = append(sections, m.theme.errBanner.Render(
			fmt.Sprintf("%s  (x to dismiss)", m.lastErr.Message)))
	}
	sections = append(sections, m.viewFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) viewHeader() string {
	style, ok := m.theme.status[m.status]
	if !ok {
		style = m.theme.muted
	}

	flags := ""
	if m.controller.Muted() {
		flags += "  mic muted"
	}
	if m.controller.OutputMuted() {
		flags += "  speaker muted"
	}
	return m.theme.header.Render("Maya") + "  " +
		style.Render(statusLabel(m.status)) +
		m.theme.muted.Render(flags)
}

func (m model) viewFooter() string {
	return m.theme.footer.Render(
		"s start/stop · m mute · o speaker · c clear · d logs · e settings · q quit")
}

func (m model) viewSettings() string {
	sections := []string{
		m.theme.panelTitle.Render("Settings"),
		m.theme.muted.Render("tab next field · ctrl+s save · esc cancel"),
		"",
		m.theme.muted.Render("System instruction"),
		m.instruction.View(),
		"",
		m.theme.muted.Render("Knowledge base"),
		m.knowledge.View(),
		"",
		m.theme.muted.Render("Webhook token"),
		m.token.View(),
	}
	return m.theme.panel.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}
