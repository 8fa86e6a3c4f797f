package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/wordwire/wordwire/pkg/wire"
)

func main() {
	var (
		addr       string
		macStr     string
		typeStr    string
		debugLevel string
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:9189", "Coordinator sensor address")
	flag.StringVar(&macStr, "mac", "", "Sensor mac as hex (default derived from the pid)")
	flag.StringVar(&typeStr, "type", "rack", "Sensor type: board or rack")
	flag.StringVar(&debugLevel, "debuglevel", "warn", "Logging level: trace, debug, info, warn, error")
	flag.Parse()

	var st wire.SensorType
	switch strings.ToLower(typeStr) {
	case "board":
		st = wire.SensorBoard
	case "rack":
		st = wire.SensorRack
	default:
		fmt.Fprintf(os.Stderr, "unknown sensor type %q\n", typeStr)
		os.Exit(1)
	}

	mac := uint64(os.Getpid())
	if macStr != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(macStr, "0x"), 16, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad mac %q: %v\n", macStr, err)
			os.Exit(1)
		}
		mac = v
	}

	logBackend, _ := logging.NewLogBackend(logging.LogConfig{DebugLevel: debugLevel})
	log := logBackend.Logger("SNSR")

	conn, err := dialSensor(addr, mac, st, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sensorctl: %v\n", err)
		os.Exit(1)
	}
	defer conn.close()

	feed, err := conn.register()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sensorctl: registration failed: %v\n", err)
		os.Exit(1)
	}
	log.Infof("Registered as %s sensor %012X, feed %s", st, mac, feed)

	p := tea.NewProgram(initialModel(conn, feed), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "sensorctl: %v\n", err)
		os.Exit(1)
	}
}
