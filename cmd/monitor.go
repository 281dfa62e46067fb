// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/decargroup/gouwb/pkg/modem"
	"github.com/decargroup/gouwb/pkg/uwb"
)

var (
	monitorTargets  []int64
	monitorPassive  bool
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live ranging dashboard",
	Long: `Interactive dashboard showing live ranges to neighbour modules.

Ranges each --target in turn and keeps a per-neighbour table of the
latest measurement. With --passive, transactions overheard between
other modules are shown as well. Parser statistics refresh once a
second.

Keys: q quits, r resets the statistics.

Examples:
  gouwb monitor --port /dev/ttyACM0 --target 2 --target 3
  gouwb monitor --port /dev/ttyACM0 --passive`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Int64SliceVar(&monitorTargets, "target", nil, "Neighbour module id to range against (repeatable)")
	monitorCmd.Flags().BoolVar(&monitorPassive, "passive", false, "Also show overheard transactions")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 250*time.Millisecond, "Delay between ranging transactions")
}

// Neighbour table entry
type neighbourEntry struct {
	id       int64
	lastMeas uwb.RangeMeasurement
	lastSeen time.Time
	count    int
	misses   int
}

// Event log entry
type monitorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type monitorModel struct {
	connInfo   string
	resetStats func()
	neighbours map[int64]*neighbourEntry
	eventLog   []monitorLogEntry
	maxLog     int
	stats      modem.Snapshot
	width      int
	height     int
	quitting   bool
}

// Messages
type monitorTickMsg time.Time
type monitorRangeMsg struct {
	meas    uwb.RangeMeasurement
	timeout bool
	target  int64
}
type monitorPassiveMsg uwb.PassiveMeasurement
type monitorStatsMsg modem.Snapshot
type monitorLogMsg struct {
	message string
	isError bool
}

func initialMonitorModel(connInfo string, resetStats func()) monitorModel {
	return monitorModel{
		connInfo:   connInfo,
		resetStats: resetStats,
		neighbours: make(map[int64]*neighbourEntry),
		maxLog:     12,
		width:      80,
		height:     24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(), tea.EnterAltScreen)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.resetStats()
			m.stats = modem.Snapshot{}
			m.addLog("statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		return m, monitorTickCmd()

	case monitorStatsMsg:
		m.stats = modem.Snapshot(msg)

	case monitorRangeMsg:
		entry, exists := m.neighbours[msg.target]
		if !exists {
			entry = &neighbourEntry{id: msg.target}
			m.neighbours[msg.target] = entry
		}
		if msg.timeout {
			entry.misses++
		} else {
			entry.lastMeas = msg.meas
			entry.lastSeen = time.Now()
			entry.count++
		}

	case monitorPassiveMsg:
		pm := uwb.PassiveMeasurement(msg)
		m.addLog(fmt.Sprintf("passive %s", pm.Format()), false)

	case monitorLogMsg:
		m.addLog(msg.message, msg.isError)
	}

	return m, nil
}

func (m *monitorModel) addLog(message string, isError bool) {
	m.eventLog = append(m.eventLog, monitorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLog {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLog:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("GOUWB - RANGING MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press 'q' to quit, 'r' to reset stats", m.connInfo)))
	s.WriteString("\n\n")

	// Neighbour table
	table := strings.Builder{}
	table.WriteString(labelStyle.Render(fmt.Sprintf("%-10s %-10s %-8s %-8s %-10s", "NEIGHBOUR", "RANGE", "OK", "MISS", "AGE")))
	table.WriteString("\n")
	ids := make([]int64, 0, len(m.neighbours))
	for id := range m.neighbours {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		table.WriteString(headerStyle.Render("no measurements yet"))
		table.WriteString("\n")
	}
	for _, id := range ids {
		e := m.neighbours[id]
		rangeStr, ageStr := "-", "-"
		if e.count > 0 {
			rangeStr = fmt.Sprintf("%.3f m", e.lastMeas.Range)
			ageStr = fmt.Sprintf("%.1fs", time.Since(e.lastSeen).Seconds())
		}
		table.WriteString(fmt.Sprintf("%-10d %-10s %-8s %-8s %-10s\n",
			e.id,
			valueStyle.Render(rangeStr),
			valueStyle.Render(fmt.Sprintf("%d", e.count)),
			errorStyle.Render(fmt.Sprintf("%d", e.misses)),
			ageStr,
		))
	}
	s.WriteString(boxStyle.Render(table.String()))
	s.WriteString("\n\n")

	// Statistics
	statsContent := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.FramesParsed)),
		labelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.FormatErrors+m.stats.TruncatedFrames)),
		labelStyle.Render("Timeouts:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Timeouts)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.FrameRate)),
	)
	s.WriteString(boxStyle.Render(statsContent))
	s.WriteString("\n\n")

	// Event log
	logContent := strings.Builder{}
	logContent.WriteString(labelStyle.Render("EVENTS"))
	logContent.WriteString("\n")
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("none"))
	}
	for _, entry := range m.eventLog {
		style := headerStyle
		if entry.isError {
			style = errorStyle
		}
		logContent.WriteString(fmt.Sprintf("%s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05")),
			style.Render(entry.message)))
	}
	s.WriteString(boxStyle.Render(logContent.String()))
	s.WriteString("\n")

	return s.String()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if cooperative {
		return fmt.Errorf("monitor requires the threaded engine (drop --cooperative)")
	}
	if len(monitorTargets) == 0 && !monitorPassive {
		return fmt.Errorf("nothing to monitor: give --target and/or --passive")
	}

	dev, info, err := openDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	if monitorPassive {
		if acked, err := dev.SetPassiveListening(true); err != nil || !acked {
			dev.Close()
			return fmt.Errorf("passive listening not acknowledged")
		}
		defer dev.SetPassiveListening(false)
	}

	p := tea.NewProgram(initialMonitorModel(info, dev.Modem().Stats().Reset), tea.WithAltScreen())

	dev.RegisterListeningCallback(func(pm uwb.PassiveMeasurement) {
		p.Send(monitorPassiveMsg(pm))
	})

	done := make(chan struct{})

	// Ranging loop: cycles through the targets and forwards each result
	// to the TUI.
	if len(monitorTargets) > 0 {
		go func() {
			for {
				for _, target := range monitorTargets {
					select {
					case <-done:
						return
					default:
					}
					meas, ok, err := dev.DoTWR(uwb.TWROptions{TargetID: target, DSTwr: true})
					if err != nil {
						p.Send(monitorLogMsg{message: fmt.Sprintf("ranging error: %v", err), isError: true})
						return
					}
					p.Send(monitorRangeMsg{meas: meas, timeout: !ok, target: target})
					select {
					case <-done:
						return
					case <-time.After(monitorInterval):
					}
				}
			}
		}()
	}

	// Stats refresh loop.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.Send(monitorStatsMsg(dev.Modem().Stats().Snapshot()))
			}
		}
	}()

	_, err = p.Run()
	close(done)
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
