package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/vctt94/bisonbotkit/logging"
	"golang.org/x/sync/errgroup"

	"github.com/wordwire/wordwire/pkg/match"
	"github.com/wordwire/wordwire/pkg/scrabble"
)

// Config assembles a coordinator. LogBackend may be nil, in which case
// all logging is disabled (tests do this). Journal may be nil for a
// server run without an audit trail.
type Config struct {
	// TCPAddr is the sensor listener address, e.g. ":9189".
	TCPAddr string
	// HTTPAddr is the control-surface address, e.g. ":9190".
	HTTPAddr string

	LogBackend *logging.LogBackend
	Journal    Journal
	Dictionary *scrabble.Dictionary

	// LetterSet overrides the tile distribution of new matches; nil
	// means standard English.
	LetterSet *scrabble.LetterSet

	// Timings overrides the sensor session timings; the zero value
	// selects production defaults. Tests inject millisecond values.
	Timings SessionTimings

	// EventQueueSize and EventWorkers size the event pipeline; zero
	// selects the defaults.
	EventQueueSize int
	EventWorkers   int
}

func (c *Config) logger(subsystem string) slog.Logger {
	if c.LogBackend == nil {
		return slog.Disabled
	}
	return c.LogBackend.Logger(subsystem)
}

// Server ties the coordinator together: the match store, the sensor
// pool with its TCP acceptor, the HTTP control adapter, and the event
// pipeline feeding the journal and the spectator hub.
type Server struct {
	log     slog.Logger
	cfg     Config
	journal Journal

	store    *match.Store
	metrics  *Metrics
	events   *EventProcessor
	feed     *FeedHub
	pool     *SensorPool
	acceptor *Acceptor
	web      *WebAdapter

	httpListener net.Listener
}

// NewServer wires a coordinator from cfg. Run starts it.
func NewServer(cfg Config) *Server {
	if cfg.Journal == nil {
		cfg.Journal = NopJournal{}
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = 1000
	}
	if cfg.EventWorkers <= 0 {
		cfg.EventWorkers = 3
	}
	if cfg.Timings == (SessionTimings{}) {
		cfg.Timings = DefaultSessionTimings()
	}

	s := &Server{
		log:     cfg.logger("SRVR"),
		cfg:     cfg,
		journal: cfg.Journal,
		store:   match.NewStore(cfg.logger("MTCH")),
		metrics: NewMetrics(),
		events:  NewEventProcessor(cfg.logger("EVNT"), cfg.EventQueueSize, cfg.EventWorkers),
		feed:    NewFeedHub(cfg.logger("FEED")),
	}
	s.events.RegisterHandler(NewJournalHandler(s.journal, cfg.logger("JRNL")))
	s.events.RegisterHandler(NewFeedHandler(s.feed, cfg.logger("FEED")))

	s.pool = NewSensorPool(PoolConfig{
		Log:       cfg.logger("POOL"),
		MatchLog:  cfg.logger("MTCH"),
		Store:     s.store,
		Metrics:   s.metrics,
		Events:    s.events,
		LetterSet: cfg.LetterSet,
	})
	s.acceptor = NewAcceptor(s.pool, cfg.logger("SOCK"), cfg.Timings)
	s.web = NewWebAdapter(WebConfig{
		Log:        cfg.logger("HTTP"),
		Store:      s.store,
		Pool:       s.pool,
		Journal:    s.journal,
		Feed:       s.feed,
		Metrics:    s.metrics,
		Events:     s.events,
		Dictionary: cfg.Dictionary,
	})
	return s
}

// Store exposes the match registry, mainly for tests.
func (s *Server) Store() *match.Store { return s.store }

// Pool exposes the sensor pool, mainly for tests.
func (s *Server) Pool() *SensorPool { return s.pool }

// TCPAddr returns the bound sensor listener address. Only valid once
// Run has started listening.
func (s *Server) TCPAddr() net.Addr { return s.acceptor.Addr() }

// HTTPAddr returns the bound control listener address. Only valid once
// Run has started listening.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// Listen binds both listeners without serving yet, so callers learn the
// ports (and any bind failure) before the loops start.
func (s *Server) Listen() error {
	if err := s.acceptor.Listen(s.cfg.TCPAddr); err != nil {
		return fmt.Errorf("binding sensor listener on %s: %w", s.cfg.TCPAddr, err)
	}
	l, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		s.acceptor.Stop()
		return fmt.Errorf("binding control listener on %s: %w", s.cfg.HTTPAddr, err)
	}
	s.httpListener = l
	s.log.Infof("Control listener bound on %s", l.Addr())
	return nil
}

// Run serves until ctx is canceled, then drains every subsystem before
// returning. Listen is called implicitly if it has not been.
func (s *Server) Run(ctx context.Context) error {
	if s.httpListener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.events.Start()
	go s.feed.Run()

	httpSrv := &http.Server{Handler: s.web}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.acceptor.Run(gctx)
	})
	g.Go(func() error {
		err := httpSrv.Serve(s.httpListener)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		s.acceptor.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	s.feed.Stop()
	s.events.Stop()
	if jerr := s.journal.Close(); jerr != nil {
		s.log.Errorf("Unable to close the journal: %v", jerr)
	}
	s.log.Infof("Coordinator stopped")
	if err == context.Canceled {
		return nil
	}
	return err
}
