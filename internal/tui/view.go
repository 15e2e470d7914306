package tui

import (
	"fmt"
	"strings"
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString("TMR Reader Monitor\n")
	b.WriteString(m.tabsLine())
	b.WriteString("\n")
	b.WriteString(m.metaLine())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	for _, line := range m.pageLines() {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.footerLine())
	return paintLayout(b.String())
}

func (m Model) tabsLine() string {
	parts := make([]string, 0, len(screens))
	for _, tab := range screens {
		if tab.screen == m.activeScreen {
			parts = append(parts, "▣ "+strings.ToUpper(tab.name))
		} else {
			parts = append(parts, "□ "+strings.ToUpper(tab.name))
		}
	}
	return strings.Join(parts, "   ")
}

func (m Model) metaLine() string {
	st := m.lastStatus
	connection := "OFFLINE"
	if st.Connected {
		connection = "ONLINE"
	}
	reading := "IDLE"
	if st.Running {
		reading = "RUNNING"
	}
	return fmt.Sprintf("Reader %s | %s | Region %s | Read %s | Tags %d | Reads %d",
		connection, fallback(st.Model, "-"), fallback(st.Region, "-"), reading, len(m.tags), m.reads)
}

func (m Model) statusLine() string {
	return statusTag(m.status) + " " + m.status
}

func (m Model) pageLines() []string {
	switch m.activeScreen {
	case screenLive:
		return m.livePageLines()
	case screenStats:
		return m.statsPageLines()
	case screenLogs:
		return m.logsPageLines()
	case screenHelp:
		return helpPageLines()
	default:
		return []string{"Unknown page"}
	}
}

func (m Model) livePageLines() []string {
	lines := []string{"[Live Tags]"}
	if m.filtering {
		lines = append(lines, "Filter: "+m.input.View())
	} else if m.filter != "" {
		lines = append(lines, "Filter: "+m.filter)
	}

	rows := m.visibleTags()
	if len(rows) == 0 {
		return append(lines, "", "No tags yet")
	}

	lines = append(lines, "", fmt.Sprintf("  %s %6s %4s %5s  %s", padRight("EPC", 26), "READS", "ANT", "RSSI", "SEEN"))
	start, end := listWindow(m.tagIndex, len(rows), m.tagViewSize())
	for i := start; i < end; i++ {
		row := rows[i]
		prefix := "  "
		if i == m.tagIndex {
			prefix = "▶ "
		}
		rssi := "-"
		if row.HasRSSI {
			rssi = fmt.Sprintf("%d", row.RSSI)
		}
		line := fmt.Sprintf("%s%s %6d %4d %5s  %s", prefix, padRight(trimText(row.EPC, 26), 26), row.Reads, row.Antenna, rssi, formatShortTime(row.LastSeen))
		if row.Error != "" {
			line += " [ERR]"
		}
		lines = append(lines, line)
	}

	sel := rows[clampInt(m.tagIndex, 0, len(rows)-1)]
	lines = append(lines, "", "Selected: "+sel.EPC)
	if sel.Data != "" {
		lines = append(lines, "Data: "+trimText(sel.Data, 64))
	}
	if sel.Error != "" {
		lines = append(lines, "Error: "+sel.Error)
	}
	return lines
}

func (m Model) statsPageLines() []string {
	st := m.lastStatus
	lines := []string{
		"[Reader]",
		"URI: " + fallback(st.URI, "-"),
		fmt.Sprintf("Model: %s  Class: %s  Baud: %d", fallback(st.Model, "-"), fallback(st.Class, "-"), st.BaudRate),
		fmt.Sprintf("Region: %s  Band: %s", fallback(st.Region, "-"), fallback(st.RegionBand, "-")),
		fmt.Sprintf("Unique: %d  Reads: %d  Op errors: %d  Buffer full: %d", st.UniqueSeen, st.TotalReads, st.OpErrors, st.BufferFull),
		fmt.Sprintf("Restarts: %d  Cooldowns: %d  Last tag: %s", st.RestartCount, st.Cooldowns, formatShortTime(st.LastTagAt)),
		"",
		"[Statistics]",
	}
	if st.Stats == nil {
		return append(lines, "No statistics reported")
	}
	stats := st.Stats
	lines = append(lines,
		fmt.Sprintf("Temperature: %d C", stats.TemperatureC),
		fmt.Sprintf("Protocol: %s  Antenna: %d", stats.Protocol, stats.Antenna),
	)
	if stats.FrequencyKHz > 0 {
		lines = append(lines, fmt.Sprintf("Frequency: %d kHz", stats.FrequencyKHz))
	}
	if stats.DCVoltageMV > 0 {
		lines = append(lines, fmt.Sprintf("DC voltage: %d mV", stats.DCVoltageMV))
	}
	for _, ant := range stats.ConnectedAntennas {
		lines = append(lines, fmt.Sprintf("ANT%d connected: %s", ant.Port, onOff(ant.Connected)))
	}
	for _, v := range stats.NoiseFloor {
		lines = append(lines, fmt.Sprintf("ANT%d noise floor: %d dBm", v.Port, v.Value))
	}
	for _, v := range stats.RFOnTimeMs {
		lines = append(lines, fmt.Sprintf("ANT%d RF on: %d ms", v.Port, v.Value))
	}
	return lines
}

func (m Model) logsPageLines() []string {
	lines := []string{"[Logs]"}
	if len(m.logs) == 0 {
		return append(lines, "No events")
	}
	size := m.logViewSize()
	end := len(m.logs) - m.logScroll
	start := end - size
	if start < 0 {
		start = 0
	}
	return append(lines, m.logs[start:end]...)
}

func helpPageLines() []string {
	return []string{
		"[Help]",
		"s        start or stop reading",
		"tab, 1-4 switch page",
		"up/down  move selection or scroll logs",
		"/        filter tags by EPC prefix",
		"c        clear tags or logs",
		"q        quit",
	}
}

func (m Model) footerLine() string {
	if m.filtering {
		return "Keys: [Enter] Apply  [Esc] Cancel"
	}
	switch m.activeScreen {
	case screenLive:
		return "Keys: [s] Start/Stop  [/] Filter  [c] Clear  [Tab] Next  [q] Exit"
	case screenLogs:
		return "Keys: [Up/Down] Scroll  [c] Clear  [Tab] Next  [q] Exit"
	default:
		return "Keys: [s] Start/Stop  [Tab] Next  [q] Exit"
	}
}

func (m Model) tagViewSize() int {
	if m.height <= 0 {
		return 12
	}
	return clampInt(m.height-14, 4, 40)
}

func (m Model) logViewSize() int {
	if m.height <= 0 {
		return 12
	}
	return clampInt(m.height-10, 6, 40)
}
