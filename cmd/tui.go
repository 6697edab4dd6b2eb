// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// zoneAddr identifies a zone on the bus
type zoneAddr struct {
	controller byte
	zone       byte
}

// zoneView is the last reported state of one zone
type zoneView struct {
	addr     zoneAddr
	name     string
	power    bool
	source   byte
	volume   int
	bass     int
	treble   int
	balance  int
	loudness bool
	updated  time.Time
}

func (z zoneView) label() string {
	if z.name != "" {
		return z.name
	}
	return fmt.Sprintf("Zone %d.%d", z.addr.controller, z.addr.zone)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// zoneTable tracks zone state from inbound zone replies
type zoneTable map[zoneAddr]*zoneView

// apply folds a zone reply into the table and reports whether p was one
func (t zoneTable) apply(p rnet.Packet) bool {
	get := func(controller, zone byte) *zoneView {
		addr := zoneAddr{controller, zone}
		z, ok := t[addr]
		if !ok {
			z = &zoneView{addr: addr, name: cfg.ZoneName(controller, zone)}
			t[addr] = z
		}
		z.updated = time.Now()
		return z
	}

	switch p := p.(type) {
	case *rnet.ZoneInfoPacket:
		z := get(p.ControllerID, p.ZoneID)
		z.power = p.Power
		z.source = p.SourceID
		z.volume = p.Volume
		z.bass = p.Bass
		z.treble = p.Treble
		z.balance = p.Balance
		z.loudness = p.Loudness
	case *rnet.ZonePowerPacket:
		get(p.ControllerID, p.ZoneID).power = p.Power
	case *rnet.ZoneVolumePacket:
		get(p.ControllerID, p.ZoneID).volume = p.Volume
	case *rnet.ZoneSourcePacket:
		get(p.ControllerID, p.ZoneID).source = p.SourceID
	case *rnet.ZoneParameterPacket:
		z := get(p.ControllerID, p.ZoneID)
		switch p.Parameter {
		case rnet.ParamBass:
			z.bass = p.Value.Int
		case rnet.ParamTreble:
			z.treble = p.Value.Int
		case rnet.ParamBalance:
			z.balance = p.Value.Int
		case rnet.ParamLoudness:
			z.loudness = p.Value.Bool
		}
	default:
		return false
	}
	return true
}

// sorted returns the zones ordered by address
func (t zoneTable) sorted() []zoneView {
	zones := make([]zoneView, 0, len(t))
	for _, z := range t {
		zones = append(zones, *z)
	}
	sort.Slice(zones, func(i, j int) bool {
		if zones[i].addr.controller != zones[j].addr.controller {
			return zones[i].addr.controller < zones[j].addr.controller
		}
		return zones[i].addr.zone < zones[j].addr.zone
	})
	return zones
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	sess          *session.Session
	stats         rnet.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	skippedErrors int
	zones         zoneTable
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type busEventMsg struct {
	event session.Event
}
type busErrorMsg struct {
	err error
}
type syncMsg struct {
	skippedErrors int
}

func initialModel(sess *session.Session, connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		sess:          sess,
		stats:         sess.Stats(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		zones:         make(zoneTable),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.sess.ResetStats()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats = m.sess.Stats()
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.skippedErrors = msg.skippedErrors
		if msg.skippedErrors > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after %d framing errors", msg.skippedErrors), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case busErrorMsg:
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)

	case busEventMsg:
		m.processEvent(msg.event)
	}

	return m, nil
}

func (m *model) processEvent(e session.Event) {
	if e.Direction == session.Outbound {
		if m.showAll && e.Packet != nil {
			m.addLogEntry(fmt.Sprintf("TX %s", rnet.FormatPacketName(e.Packet)), false)
		}
		return
	}

	if e.Packet == nil {
		m.addLogEntry(fmt.Sprintf("Unclassified %s frame from %d.%d",
			rnet.FormatMessageType(e.Frame.MessageType), e.Frame.SourceControllerID, e.Frame.SourceZoneID), false)
	} else {
		m.zones.apply(e.Packet)
	}

	if len(e.Anomalies) > 0 {
		name := rnet.FormatMessageType(e.Frame.MessageType)
		if e.Packet != nil {
			name = rnet.FormatPacketName(e.Packet)
		}
		for _, a := range e.Anomalies {
			m.addLogEntry(fmt.Sprintf("%s: %s", name, a.Message), true)
		}
	} else if m.showAll && e.Packet != nil {
		m.addLogEntry(fmt.Sprintf("%s (valid)", rnet.FormatPacketName(e.Packet)), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

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

	mode := "Errors only"
	if m.showAll {
		mode = "All packets"
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("RNETSTAT - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' resets stats, 'q' quits", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.skippedErrors > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d framing errors)", m.skippedErrors)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	st := m.stats
	var validPercent, errorPercent float64
	if st.TotalFrames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.TotalFrames)
		errorPercent = float64(st.ErrorCount()) * 100.0 / float64(st.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ErrorCount(), errorPercent)),
	))

	if st.FramingErrors > 0 || st.DecodeErrors > 0 || st.ChecksumErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Framing:"), errorStyle.Render(fmt.Sprintf("%d", st.FramingErrors)),
			statsLabelStyle.Render("Decode:"), errorStyle.Render(fmt.Sprintf("%d", st.DecodeErrors)),
			statsLabelStyle.Render("Checksum:"), warningStyle.Render(fmt.Sprintf("%d", st.ChecksumErrors)),
		))
	}

	if st.MalformedPackets > 0 || st.AnomalousValues > 0 || st.Unclassified > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", st.MalformedPackets)),
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", st.AnomalousValues)),
			statsLabelStyle.Render("Unclassified:"), headerStyle.Render(fmt.Sprintf("%d", st.Unclassified)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f fr/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if st.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
		}(),
		statsLabelStyle.Render("Handshakes:"), statsValueStyle.Render(fmt.Sprintf("%d rx / %d tx", st.HandshakesRecv, st.HandshakesSent)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Zones (only shown once a zone reply was seen)
	if len(m.zones) > 0 {
		s.WriteString(statsLabelStyle.Render("Zones:"))
		s.WriteString("\n")

		zoneContent := strings.Builder{}
		for _, z := range m.zones.sorted() {
			power := headerStyle.Render("off")
			if z.power {
				power = statsValueStyle.Render("on ")
			}
			zoneContent.WriteString(fmt.Sprintf("%-16s %s  %s %d  %s %3d  %s %+d/%+d\n",
				z.label(), power,
				statsLabelStyle.Render("Src"), z.source,
				statsLabelStyle.Render("Vol"), z.volume,
				statsLabelStyle.Render("B/T"), z.bass, z.treble,
			))
		}

		s.WriteString(boxStyle.Render(strings.TrimSuffix(zoneContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15 - len(m.zones)
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
