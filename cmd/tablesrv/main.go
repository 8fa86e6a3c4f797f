package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/joho/godotenv"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/wordwire/wordwire/pkg/scrabble"
	"github.com/wordwire/wordwire/pkg/server"
)

func realMain() error {
	var (
		tcpAddr    string
		httpAddr   string
		dataDir    string
		journal    string
		dictionary string
		letterSet  string
		debugLevel string
		portFile   string
	)
	flag.StringVar(&tcpAddr, "tcpaddr", ":9189", "Sensor listener address")
	flag.StringVar(&httpAddr, "httpaddr", ":9190", "Control surface address")
	flag.StringVar(&dataDir, "datadir", dcrutil.AppDataDir("tablesrv", false), "Directory for logs and the journal")
	flag.StringVar(&journal, "journal", "", "Path to the SQLite journal (default <datadir>/journal.sqlite, \"none\" disables it)")
	flag.StringVar(&dictionary, "dictionary", "", "Path to a newline-separated word list for challenges")
	flag.StringVar(&letterSet, "letterset", "", "Path to a YAML tile distribution (default standard English)")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.StringVar(&portFile, "portfile", "", "If set, write the bound sensor port to this file")
	flag.Parse()

	// A .env next to the binary may override the environment; flags
	// still win because they were parsed already.
	_ = godotenv.Load()
	if env := os.Getenv("TABLESRV_DEBUG"); env != "" && debugLevel == "info" {
		debugLevel = env
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("creating data dir %s: %w", dataDir, err)
	}

	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:        filepath.Join(dataDir, "logs", "tablesrv.log"),
		DebugLevel:     debugLevel,
		MaxLogFiles:    10,
		MaxBufferLines: 1000,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log := logBackend.Logger("MAIN")

	cfg := server.Config{
		TCPAddr:    tcpAddr,
		HTTPAddr:   httpAddr,
		LogBackend: logBackend,
	}

	if journal != "none" {
		if journal == "" {
			journal = filepath.Join(dataDir, "journal.sqlite")
		}
		j, err := server.NewJournal(journal)
		if err != nil {
			return fmt.Errorf("opening journal %s: %w", journal, err)
		}
		cfg.Journal = j
		log.Infof("Journaling matches to %s", journal)
	}

	if dictionary != "" {
		dict, err := scrabble.LoadDictionary(dictionary)
		if err != nil {
			return fmt.Errorf("loading dictionary %s: %w", dictionary, err)
		}
		cfg.Dictionary = dict
		log.Infof("Challenge dictionary loaded from %s (%d words)", dictionary, dict.Size())
	}

	if letterSet != "" {
		ls, err := scrabble.LoadLetterSet(letterSet)
		if err != nil {
			return fmt.Errorf("loading letter set %s: %w", letterSet, err)
		}
		// The set drives both the bag counts (per match, via the
		// config) and the process-wide letter values, which must be
		// swapped before the first board exists.
		scrabble.UseLetterSet(ls)
		cfg.LetterSet = ls
		log.Infof("Letter set loaded from %s (%d tiles)", letterSet, ls.TotalTiles())
	}

	srv := server.NewServer(cfg)
	if err := srv.Listen(); err != nil {
		return err
	}
	log.Infof("Sensor listener bound on %s", srv.TCPAddr())

	if portFile != "" {
		_, p, _ := net.SplitHostPort(srv.TCPAddr().String())
		_ = os.WriteFile(portFile, []byte(p), 0600)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintf(os.Stderr, "tablesrv: %v\n", err)
		os.Exit(1)
	}
}
