// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	discoveryTimeoutSeconds = 3  // Discovery ends N seconds after last zone seen
	discoveryGiveUpSeconds  = 20 // Discovery ends after N seconds without any zone
	refreshIntervalSeconds  = 5  // Request the selected zone's state every N seconds
)

// Focus states
const (
	focusZoneList = iota
	focusVolumeInput
	focusSourceInput
	focusPowerButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// zoneItem adapts a zone to the list
type zoneItem struct {
	zoneView
}

// Implement list.Item interface
func (z zoneItem) Title() string { return z.label() }
func (z zoneItem) Description() string {
	if !z.power {
		return "off"
	}
	return fmt.Sprintf("on, source %d, volume %d", z.source, z.volume)
}
func (z zoneItem) FilterValue() string { return z.label() }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Zone tracking
	zones    zoneTable
	order    []zoneAddr
	zoneList list.Model
	sources  map[byte]string // Source descriptive text by source ID

	// Discovery state
	discoveryDone    bool
	discoveryStarted time.Time
	lastZoneSeen     time.Time

	// Monitoring (shared with tui.go)
	stats         rnet.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int

	// Control
	volumeInput  textinput.Model
	sourceInput  textinput.Model
	focusedField int

	// UI state
	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool

	lastRefresh time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

// controlDataMsg carries either a session event or a decode error
type controlDataMsg struct {
	event *session.Event
	err   error
}

type controlSyncMsg struct {
	skippedErrors int
}

type controlBatchMsg struct {
	messages []controlDataMsg
	syncMsg  *controlSyncMsg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	vi := textinput.New()
	vi.Placeholder = "30"
	vi.CharLimit = 3
	vi.Width = 5

	si := textinput.New()
	si.Placeholder = "0"
	si.CharLimit = 1
	si.Width = 3

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	zoneList := list.New([]list.Item{}, delegate, 30, 10)
	zoneList.Title = "Zones"
	zoneList.SetShowStatusBar(false)
	zoneList.SetShowHelp(false)
	zoneList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:          connMgr,
		connInfo:         connInfo,
		zones:            make(zoneTable),
		zoneList:         zoneList,
		sources:          make(map[byte]string),
		discoveryStarted: time.Now(),
		errorLog:         make([]errorLogEntry, 0),
		maxLogEntries:    100,
		volumeInput:      vi,
		sourceInput:      si,
		focusedField:     focusZoneList,
		width:            80,
		height:           24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats = m.connMgr.sess.Stats()
		m.stats.CalculateRates()

		if !m.discoveryDone {
			switch {
			case !m.lastZoneSeen.IsZero() && time.Since(m.lastZoneSeen) > discoveryTimeoutSeconds*time.Second:
				m.finishDiscovery()
			case m.lastZoneSeen.IsZero() && time.Since(m.discoveryStarted) > discoveryGiveUpSeconds*time.Second:
				m.finishDiscovery()
			}
		}

		// Keep the selected zone fresh; other zones update from their replies
		if m.discoveryDone && !m.connectionLost && time.Since(m.lastRefresh) >= refreshIntervalSeconds*time.Second {
			m.lastRefresh = time.Now()
			if selected := m.getSelectedZone(); selected != nil {
				m.connMgr.send(rnet.NewRequestZoneInfo(selected.addr.controller, selected.addr.zone))
			}
		}
		return m, controlTickCmd()

	case controlBatchMsg:
		if msg.syncMsg != nil {
			m.synchronized = true
			if msg.syncMsg.skippedErrors > 0 {
				m.addLogEntry(fmt.Sprintf("Synchronized after %d framing errors", msg.syncMsg.skippedErrors), false)
			} else {
				m.addLogEntry("Synchronized", false)
			}
		}
		for _, data := range msg.messages {
			m.processControlData(data)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.resetDiscovery()
		m.addLogEntry("Reconnected - requesting zones", false)
	}

	// Update child components
	var cmd tea.Cmd
	switch m.focusedField {
	case focusVolumeInput:
		m.volumeInput, cmd = m.volumeInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusSourceInput:
		m.sourceInput, cmd = m.sourceInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusZoneList:
		m.zoneList, cmd = m.zoneList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		if m.discoveryDone {
			return m.handleEnter()
		}

	case "up", "k":
		if m.focusedField == focusZoneList {
			m.zoneList, _ = m.zoneList.Update(msg)
		}

	case "down", "j":
		if m.focusedField == focusZoneList {
			m.zoneList, _ = m.zoneList.Update(msg)
		}

	case "+", "=":
		if m.focusedField == focusZoneList {
			return m.stepVolume(2)
		}

	case "-":
		if m.focusedField == focusZoneList {
			return m.stepVolume(-2)
		}

	case "p":
		if m.focusedField == focusZoneList && m.discoveryDone {
			return m.sendPowerToggle()
		}
	}

	// Pass through to focused component
	var cmd tea.Cmd
	switch m.focusedField {
	case focusVolumeInput:
		m.volumeInput, cmd = m.volumeInput.Update(msg)
	case focusSourceInput:
		m.sourceInput, cmd = m.sourceInput.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	m.zoneList, _ = m.zoneList.Update(msg)
	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	if !m.discoveryDone {
		return m
	}

	if m.getSelectedZone() == nil {
		m.focusedField = focusZoneList
		return m
	}

	maxFocus := focusPowerButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	m.volumeInput.Blur()
	m.sourceInput.Blur()
	switch m.focusedField {
	case focusVolumeInput:
		m.volumeInput.Focus()
	case focusSourceInput:
		m.sourceInput.Focus()
	}

	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focusedField {
	case focusVolumeInput:
		return m.sendVolumeCommand()
	case focusSourceInput:
		return m.sendSourceCommand()
	case focusPowerButton:
		return m.sendPowerToggle()
	}
	return m, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	helpText := "q=quit"
	if m.discoveryDone {
		helpText = "q=quit Tab=switch p=power +/-=volume"
	}
	s.WriteString(titleStyle.Render("RNETSTAT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n")

	// Sequencer state (below header)
	seq := m.connMgr.sess.Sequencer()
	s.WriteString(fmt.Sprintf(" %s %s  %s %s",
		statsLabelStyle.Render("Bus:"),
		statsValueStyle.Render(seq.State().String()),
		statsLabelStyle.Render("Queued:"),
		statsValueStyle.Render(fmt.Sprintf("%d", seq.Pending()))))
	s.WriteString("\n\n")

	if !m.discoveryDone {
		s.WriteString(m.renderDiscoveryView(statsLabelStyle, warningStyle, boxStyle))
	} else {
		s.WriteString(m.renderControlView(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, headerStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle))
	}

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderDiscoveryView(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder

	s.WriteString(warningStyle.Render("Requesting zones..."))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Found: %d zone(s)\n\n", len(m.zones)))

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

func (m controlModel) renderControlView(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, headerStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	// Layout: left panel (zones) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusZoneList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	zonePanel := listStyle.Render(m.zoneList.View())

	controlContent := m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle)
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, zonePanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	if selected := m.getSelectedZone(); selected != nil {
		s.WriteString(m.renderZoneDetail(selected, statsLabelStyle, statsValueStyle, boxStyle))
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.getSelectedZone()
	if selected == nil {
		s.WriteString(headerStyle.Render("No zone selected"))
		return s.String()
	}

	power := strings.ToUpper(onOff(selected.power))
	s.WriteString(fmt.Sprintf("%s %s (%d.%d)\n", statsLabelStyle.Render("Selected:"),
		selected.label(), selected.addr.controller, selected.addr.zone))
	s.WriteString(fmt.Sprintf("%s %s\n\n", statsLabelStyle.Render("Power:"), statsValueStyle.Render(power)))

	renderInput := func(label string, in textinput.Model, focused bool, current string) {
		s.WriteString(statsLabelStyle.Render(label))
		if focused {
			s.WriteString(in.View())
		} else {
			val := in.Value()
			if val == "" {
				val = current
			}
			s.WriteString(fmt.Sprintf("[%s]", val))
		}
		s.WriteString("\n")
	}
	renderInput("Volume: ", m.volumeInput, m.focusedField == focusVolumeInput, strconv.Itoa(selected.volume))
	renderInput("Source: ", m.sourceInput, m.focusedField == focusSourceInput, strconv.Itoa(int(selected.source)))
	if text, ok := m.sources[selected.source]; ok {
		s.WriteString(headerStyle.Render(fmt.Sprintf("        %q", text)))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	btnText := "[ Turn On ]"
	if selected.power {
		btnText = "[ Turn Off ]"
	}
	if m.focusedField == focusPowerButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	st := m.stats
	var validPercent, errorPercent float64
	if st.TotalFrames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.TotalFrames)
		errorPercent = float64(st.ErrorCount()) * 100.0 / float64(st.TotalFrames)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f fr/s", st.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderZoneDetail(z *zoneView, statsLabelStyle, statsValueStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(statsLabelStyle.Render("ZONE"))
	content.WriteString(" | ")

	if z.updated.IsZero() {
		content.WriteString("No zone data")
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	content.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Bass:"), statsValueStyle.Render(fmt.Sprintf("%+d", z.bass)),
		statsLabelStyle.Render("Treble:"), statsValueStyle.Render(fmt.Sprintf("%+d", z.treble)),
		statsLabelStyle.Render("Balance:"), statsValueStyle.Render(fmt.Sprintf("%+d", z.balance)),
		statsLabelStyle.Render("Loudness:"), statsValueStyle.Render(onOff(z.loudness)),
		statsLabelStyle.Render("Updated:"), statsValueStyle.Render(z.updated.Format("15:04:05")),
	))

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}

	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processControlData(msg controlDataMsg) {
	if msg.err != nil {
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)
		return
	}

	e := msg.event
	if e == nil || e.Direction != session.Inbound {
		return
	}

	for _, a := range e.Anomalies {
		m.addLogEntry(fmt.Sprintf("%s: %s", rnet.FormatMessageType(e.Frame.MessageType), a.Message), true)
	}

	switch p := e.Packet.(type) {
	case *rnet.SourceDescriptiveTextPacket:
		m.sources[p.SourceID] = p.Text

	case *rnet.KeypadEventPacket:
		m.addLogEntry(fmt.Sprintf("Keypad %d.%d: %s", p.ControllerID, p.ZoneID, rnet.FormatKeypadKey(p.Key)), false)

	case nil:

	default:
		m.handleZoneReply(p)
	}
}

func (m *controlModel) handleZoneReply(p rnet.Packet) {
	before := len(m.zones)
	var prevPower bool
	if selected := m.getSelectedZone(); selected != nil {
		prevPower = selected.power
	}

	if !m.zones.apply(p) {
		return
	}

	if len(m.zones) > before {
		for addr, z := range m.zones {
			if !containsAddr(m.order, addr) {
				m.order = append(m.order, addr)
				m.addLogEntry(fmt.Sprintf("Zone found: %s", z.label()), false)
			}
		}
		m.sortOrder()
	}

	if !m.discoveryDone {
		m.lastZoneSeen = time.Now()
		return
	}

	if selected := m.getSelectedZone(); selected != nil && selected.power != prevPower {
		m.addLogEntry(fmt.Sprintf("%s turned %s", selected.label(), onOff(selected.power)), false)
	}
	m.updateZoneList()
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// sendZoneCommand sends p and asks the zone for its new state
func (m *controlModel) sendZoneCommand(z *zoneView, p rnet.Packet, description string) (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	if err := m.connMgr.send(p); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send command: %v", err), true)
		return m, nil
	}
	m.connMgr.send(rnet.NewRequestZoneInfo(z.addr.controller, z.addr.zone))

	m.addLogEntry(fmt.Sprintf("Sent %s to %s", description, z.label()), false)
	return m, nil
}

func (m *controlModel) sendVolumeCommand() (tea.Model, tea.Cmd) {
	selected := m.getSelectedZone()
	if selected == nil {
		return m, nil
	}

	volStr := m.volumeInput.Value()
	if volStr == "" {
		volStr = m.volumeInput.Placeholder
	}
	volume, err := strconv.Atoi(volStr)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid volume: %s", volStr), true)
		return m, nil
	}

	p, err := rnet.NewSetVolume(selected.addr.controller, selected.addr.zone, volume)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	m.volumeInput.SetValue("")
	return m.sendZoneCommand(selected, p, fmt.Sprintf("VOLUME=%d", volume))
}

func (m *controlModel) stepVolume(delta int) (tea.Model, tea.Cmd) {
	selected := m.getSelectedZone()
	if selected == nil || !m.discoveryDone {
		return m, nil
	}

	volume := selected.volume + delta
	volume = max(0, min(rnet.MaxVolume, volume))

	p, err := rnet.NewSetVolume(selected.addr.controller, selected.addr.zone, volume)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	return m.sendZoneCommand(selected, p, fmt.Sprintf("VOLUME=%d", volume))
}

func (m *controlModel) sendSourceCommand() (tea.Model, tea.Cmd) {
	selected := m.getSelectedZone()
	if selected == nil {
		return m, nil
	}

	srcStr := m.sourceInput.Value()
	if srcStr == "" {
		srcStr = m.sourceInput.Placeholder
	}
	source, err := strconv.ParseUint(srcStr, 10, 8)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid source: %s", srcStr), true)
		return m, nil
	}

	p, err := rnet.NewSetSource(selected.addr.controller, selected.addr.zone, byte(source))
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	m.sourceInput.SetValue("")
	return m.sendZoneCommand(selected, p, fmt.Sprintf("SOURCE=%d", source))
}

func (m *controlModel) sendPowerToggle() (tea.Model, tea.Cmd) {
	selected := m.getSelectedZone()
	if selected == nil {
		return m, nil
	}

	on := !selected.power
	p := rnet.NewSetPower(selected.addr.controller, selected.addr.zone, on)
	return m.sendZoneCommand(selected, p, "POWER="+strings.ToUpper(onOff(on)))
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) getSelectedZone() *zoneView {
	if !m.discoveryDone || len(m.order) == 0 {
		return nil
	}

	idx := m.zoneList.Index()
	if idx < 0 || idx >= len(m.order) {
		return nil
	}

	return m.zones[m.order[idx]]
}

func (m *controlModel) finishDiscovery() {
	if m.discoveryDone {
		return
	}

	m.discoveryDone = true
	m.updateZoneList()

	if len(m.order) == 0 {
		m.addLogEntry("No zones answered", true)
		return
	}
	m.addLogEntry(fmt.Sprintf("Discovery complete: %d zone(s)", len(m.order)), false)
	m.focusedField = focusZoneList
}

func (m *controlModel) resetDiscovery() {
	m.discoveryDone = false
	m.discoveryStarted = time.Now()
	m.lastZoneSeen = time.Time{}
	m.zones = make(zoneTable)
	m.order = nil
	m.synchronized = false
	m.focusedField = focusZoneList
	m.updateZoneList()
}

// sortOrder keeps the list order in step with zoneTable.sorted
func (m *controlModel) sortOrder() {
	sorted := m.zones.sorted()
	m.order = m.order[:0]
	for _, z := range sorted {
		m.order = append(m.order, z.addr)
	}
}

func (m *controlModel) updateZoneList() {
	items := make([]list.Item, len(m.order))
	for i, addr := range m.order {
		items[i] = zoneItem{*m.zones[addr]}
	}
	m.zoneList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.zoneList.SetSize(28, listHeight)
}

func containsAddr(addrs []zoneAddr, addr zoneAddr) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}
