package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wordwire/wordwire/pkg/wire"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true).MarginLeft(2)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("140")).MarginTop(1)
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	boardStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).MarginLeft(4)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Margin(1, 0)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Custom message types for commands
type assignedMsg struct {
	matchID string
	feed    wire.Feed
}
type confirmMsg []wire.Placement
type stateRequestMsg struct{}
type ackMsg bool
type disconnectMsg error
type errorMsg error
type pulseTickMsg struct{}

// Model contains all the state for the sensor console.
type Model struct {
	conn *sensorConn
	feed wire.Feed

	matchID   string
	input     string
	message   string
	err       error
	lastPulse time.Time
	gone      bool
}

func initialModel(conn *sensorConn, feed wire.Feed) Model {
	return Model{conn: conn, feed: feed}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitEventCmd(m.conn), pulseTicker())
}

// waitEventCmd blocks on the next server-initiated event.
func waitEventCmd(conn *sensorConn) tea.Cmd {
	return func() tea.Msg {
		ev := <-conn.events
		switch ev.kind {
		case "assigned":
			return assignedMsg{matchID: ev.matchID, feed: ev.feed}
		case "confirm":
			return confirmMsg(ev.placements)
		case "state_request":
			return stateRequestMsg{}
		case "disconnect":
			return disconnectMsg(ev.err)
		}
		return nil
	}
}

func pulseTicker() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return pulseTickMsg{}
	})
}

func pulseCmd(conn *sensorConn) tea.Cmd {
	return func() tea.Msg {
		if err := conn.pulse(); err != nil {
			return errorMsg(fmt.Errorf("pulse failed: %v", err))
		}
		return nil
	}
}

func sendRackCmd(conn *sensorConn, tiles string) tea.Cmd {
	return func() tea.Msg {
		ok, err := conn.sendRack(tiles)
		if err != nil {
			return errorMsg(fmt.Errorf("rack snapshot failed: %v", err))
		}
		return ackMsg(ok)
	}
}

func sendMoveCmd(conn *sensorConn, ps []wire.Placement) tea.Cmd {
	return func() tea.Msg {
		ok, err := conn.sendMove(ps)
		if err != nil {
			return errorMsg(fmt.Errorf("board move failed: %v", err))
		}
		return ackMsg(ok)
	}
}

// parsePlacements reads tokens like "R7,7 A7,8": a letter (or ? for a
// blank) followed by row,col.
func parsePlacements(input string) ([]wire.Placement, error) {
	var ps []wire.Placement
	for _, tok := range strings.Fields(input) {
		if len(tok) < 4 {
			return nil, fmt.Errorf("bad placement %q, want LETTERrow,col", tok)
		}
		letter := tok[0]
		if letter >= 'a' && letter <= 'z' {
			letter -= 'a' - 'A'
		}
		if (letter < 'A' || letter > 'Z') && letter != '?' {
			return nil, fmt.Errorf("bad letter in %q", tok)
		}
		parts := strings.SplitN(tok[1:], ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad placement %q, want LETTERrow,col", tok)
		}
		row, err := strconv.Atoi(parts[0])
		if err != nil || row < 0 || row >= wire.BoardDim {
			return nil, fmt.Errorf("bad row in %q", tok)
		}
		col, err := strconv.Atoi(parts[1])
		if err != nil || col < 0 || col >= wire.BoardDim {
			return nil, fmt.Errorf("bad col in %q", tok)
		}
		ps = append(ps, wire.Placement{Letter: letter, Row: uint8(row), Col: uint8(col)})
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("no placements given")
	}
	return ps, nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.conn.close()
			return m, tea.Quit
		case "enter":
			input := strings.TrimSpace(m.input)
			m.input = ""
			if input == "" {
				break
			}
			if m.conn.st == wire.SensorRack {
				cmds = append(cmds, sendRackCmd(m.conn, strings.ToUpper(input)))
			} else {
				ps, err := parsePlacements(input)
				if err != nil {
					m.message = errorStyle.Render(err.Error())
					break
				}
				cmds = append(cmds, sendMoveCmd(m.conn, ps))
			}
		case "backspace":
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		case " ":
			m.input += " "
		default:
			if msg.Type == tea.KeyRunes {
				m.input += string(msg.Runes)
			}
		}

	case assignedMsg:
		m.matchID = msg.matchID
		m.feed = msg.feed
		m.message = fmt.Sprintf("Assigned to match %s as %s", msg.matchID, msg.feed)
		cmds = append(cmds, waitEventCmd(m.conn))

	case confirmMsg:
		m.message = fmt.Sprintf("Coordinator confirmed %d placement(s)", len(msg))
		cmds = append(cmds, waitEventCmd(m.conn))

	case stateRequestMsg:
		m.message = "Coordinator pulled a full board snapshot"
		cmds = append(cmds, waitEventCmd(m.conn))

	case ackMsg:
		if msg {
			m.message = "Accepted"
		} else {
			m.message = errorStyle.Render("Rejected by the coordinator")
		}

	case pulseTickMsg:
		if !m.gone {
			m.lastPulse = time.Now()
			cmds = append(cmds, pulseCmd(m.conn), pulseTicker())
		}

	case errorMsg:
		m.err = msg
		m.message = errorStyle.Render(fmt.Sprintf("Error: %v", msg))

	case disconnectMsg:
		m.gone = true
		m.message = errorStyle.Render(fmt.Sprintf("Disconnected: %v", error(msg)))
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	var s string

	s += titleStyle.Render("Sensor Console") + "\n\n"
	s += infoStyle.Render(fmt.Sprintf("Mac: %012X • Type: %s • Feed: %s", m.conn.mac, m.conn.st, m.feed)) + "\n"
	if m.matchID != "" {
		s += infoStyle.Render(fmt.Sprintf("Match: %s", m.matchID)) + "\n"
	}
	if !m.lastPulse.IsZero() {
		s += infoStyle.Render(fmt.Sprintf("Last pulse: %s", m.lastPulse.Format("15:04:05"))) + "\n"
	}
	s += "\n"

	if m.conn.st == wire.SensorBoard {
		for _, row := range m.conn.rows() {
			s += boardStyle.Render(row) + "\n"
		}
		s += "\n"
	}

	if m.message != "" {
		s += infoStyle.Render(m.message) + "\n\n"
	}

	if m.gone {
		s += helpStyle.Render("Connection lost • Ctrl+C: Quit")
		return s
	}

	if m.conn.st == wire.SensorRack {
		s += "Rack letters: "
	} else {
		s += "Placements (e.g. R7,7 A7,8): "
	}
	s += focusedStyle.Render(m.input+"▋") + "\n"
	s += helpStyle.Render("Enter: Send • Ctrl+C: Quit")

	return s
}
