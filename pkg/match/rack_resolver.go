package match

import (
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"

	"github.com/wordwire/wordwire/pkg/statemachine"
)

const (
	// MaxSnapshotAge bounds how old a resolver's latest snapshot may be
	// at commit time. Sensors report continuously, so a stale snapshot
	// means the stream died mid-turn.
	MaxSnapshotAge = 3000 * time.Millisecond

	// MinConfidence is the number of consecutive identical snapshots a
	// resolver wants before a commit stops warning about noise.
	MinConfidence = 2
)

// RackDeltaResolver fuses noisy rack readings into a committed rack
// state. While a player draws, snapshots may only grow; while they
// play, snapshots may only shrink. EndTurn commits the latest snapshot
// and flips the direction.
type RackDeltaResolver struct {
	bag *TileBag
	log slog.Logger

	machine    *statemachine.Machine[RackDeltaResolver]
	prev       TileHistogram
	curr       TileHistogram
	confidence int
	lastUpdate time.Time

	maxAge  time.Duration
	minConf int

	commitErr error
}

// NewRackDeltaResolver builds a resolver in the drawing state over an
// empty rack. The bag is shared with the match's other rack resolver.
func NewRackDeltaResolver(bag *TileBag, log slog.Logger) *RackDeltaResolver {
	r := &RackDeltaResolver{
		bag:     bag,
		log:     log,
		prev:    make(TileHistogram),
		curr:    make(TileHistogram),
		maxAge:  MaxSnapshotAge,
		minConf: MinConfidence,
	}
	r.machine = statemachine.New(r, rackDrawing)
	return r
}

// rackDrawing commits the end of a drawing phase: the tiles added since
// the last commit leave the bag, and the rack must land exactly on the
// size the bag predicted.
func rackDrawing(r *RackDeltaResolver) statemachine.StateFn[RackDeltaResolver] {
	drawn := r.curr.Minus(r.prev)
	// The expected size counts the bag before the drawn tiles leave it.
	expected := r.bag.ExpectedOnRack(r.prev)
	if !r.bag.Remove(drawn) {
		r.commitErr = fmt.Errorf("drawn tiles %s are not available in the bag", drawn)
		return rackDrawing
	}
	if got := r.curr.Total(); got != expected {
		r.commitErr = fmt.Errorf("rack holds %d tiles after drawing, expected %d", got, expected)
		return rackDrawing
	}
	if err := r.rollSnapshots(); err != nil {
		r.commitErr = err
		return rackDrawing
	}
	return rackPlaying
}

// rackPlaying commits the end of a playing phase. Tiles already left
// the rack snapshot by snapshot, so only the shared checks remain.
func rackPlaying(r *RackDeltaResolver) statemachine.StateFn[RackDeltaResolver] {
	if err := r.rollSnapshots(); err != nil {
		r.commitErr = err
		return rackPlaying
	}
	return rackDrawing
}

// rollSnapshots runs the checks shared by both states and advances the
// snapshot window so the committed rack becomes the new baseline.
func (r *RackDeltaResolver) rollSnapshots() error {
	if age := time.Since(r.lastUpdate); age > r.maxAge {
		return fmt.Errorf("rack snapshot is stale: %v old with a %v limit", age.Round(time.Millisecond), r.maxAge)
	}
	if r.confidence < r.minConf {
		r.log.Warnf("Committing rack snapshot %s with low confidence %d", r.curr, r.confidence)
	}
	r.prev = r.curr.Clone()
	r.confidence = 0
	return nil
}

// ProcessDelta ingests one full rack reading. Readings that contradict
// the current phase are dropped so a single misread cannot corrupt the
// committed rack.
func (r *RackDeltaResolver) ProcessDelta(snapshot TileHistogram) bool {
	if r.Drawing() {
		if !snapshot.Superset(r.prev) {
			r.log.Warnf("Rejecting rack snapshot %s: tiles vanished while drawing (baseline %s)", snapshot, r.prev)
			return false
		}
		if drawn := snapshot.Minus(r.prev); !r.bag.IsFeasible(drawn) {
			r.log.Warnf("Rejecting rack snapshot %s: drawn tiles %s exceed the bag", snapshot, drawn)
			return false
		}
	} else {
		if !r.prev.Superset(snapshot) {
			r.log.Warnf("Rejecting rack snapshot %s: tiles appeared while playing (baseline %s)", snapshot, r.prev)
			return false
		}
	}
	if snapshot.Equal(r.curr) {
		r.confidence++
	}
	r.curr = snapshot.Clone()
	r.lastUpdate = time.Now()
	return true
}

// EndTurn commits the latest snapshot and flips the resolver between
// drawing and playing. On failure the state is left unchanged, though a
// drawing commit may already have taken tiles out of the bag.
func (r *RackDeltaResolver) EndTurn() error {
	r.commitErr = nil
	r.machine.Step()
	if r.commitErr != nil {
		r.log.Debugf("Rack resolver at failed commit: %s", spew.Sdump(r.prev, r.curr))
	}
	return r.commitErr
}

// Drawing reports whether the resolver expects the rack to be filling.
func (r *RackDeltaResolver) Drawing() bool {
	return r.machine.Is(rackDrawing)
}

// Playing reports whether the resolver expects the rack to be emptying.
func (r *RackDeltaResolver) Playing() bool {
	return r.machine.Is(rackPlaying)
}

// CurrentRack returns a copy of the latest accepted snapshot.
func (r *RackDeltaResolver) CurrentRack() TileHistogram {
	return r.curr.Clone()
}

// TileCount returns the size of the latest accepted snapshot.
func (r *RackDeltaResolver) TileCount() int {
	return r.curr.Total()
}

// Delta returns the tiles the current phase has moved so far: tiles
// drawn while drawing, tiles leaving the rack while playing.
func (r *RackDeltaResolver) Delta() TileHistogram {
	if r.Drawing() {
		return r.curr.Minus(r.prev)
	}
	return r.prev.Minus(r.curr)
}
