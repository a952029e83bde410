package services

import (
	"strings"
	"time"

	"github.com/username/chatkit/internal/domain/entities"
	"github.com/username/chatkit/internal/pkg/constants"
)

// ReducerConfig holds configuration for the stream reducer
type ReducerConfig struct {
	// BatchThreshold is the buffered character count that forces a flush.
	BatchThreshold int
	// FlushInterval is the maximum time between flushes while content is
	// buffered.
	FlushInterval time.Duration
	// OpenMarker and CloseMarker delimit the reasoning segment.
	OpenMarker  string
	CloseMarker string
}

// DefaultReducerConfig returns the reducer defaults used in production.
func DefaultReducerConfig() *ReducerConfig {
	return &ReducerConfig{
		BatchThreshold: constants.DefaultBatchThreshold,
		FlushInterval:  constants.DefaultFlushInterval,
		OpenMarker:     constants.ThinkingOpenMarker,
		CloseMarker:    constants.ThinkingCloseMarker,
	}
}

// Update is a snapshot of reduced stream state, emitted on each flush.
// Thinking and Answer carry the full accumulated text, not deltas.
type Update struct {
	Phase           entities.DisplayPhase
	Thinking        string
	Answer          string
	TokensPerSecond *float64
	Done            bool
}

// StreamReducer folds raw model deltas into display state. It starts in the
// pending phase, moves to thinking when the stream opens with the reasoning
// marker, to answering once the marker closes (or when the stream starts with
// plain content), and to complete on Finish.
//
// Flushes are batched: an update is emitted once BatchThreshold characters
// have accumulated since the last flush, or FlushInterval has elapsed,
// whichever comes first. Finish always flushes the residue.
//
// The reducer is a plain state machine with no locking; a single goroutine
// feeds it.
type StreamReducer struct {
	config *ReducerConfig
	now    func() time.Time

	phase entities.DisplayPhase

	raw      strings.Builder // everything fed, for the unterminated-marker fallback
	carry    string          // undecided tail (possible partial marker)
	thinking strings.Builder
	answer   strings.Builder

	unflushed int
	lastFlush time.Time
	flushes   int
}

// NewStreamReducer creates a reducer. A nil config uses the production
// defaults. The clock defaults to time.Now.
func NewStreamReducer(config *ReducerConfig) *StreamReducer {
	if config == nil {
		config = DefaultReducerConfig()
	}
	r := &StreamReducer{
		config: config,
		now:    time.Now,
		phase:  entities.PhasePending,
	}
	r.lastFlush = r.now()
	return r
}

// SetClock replaces the reducer's clock. Tests use this to drive the
// interval-based flush deterministically.
func (r *StreamReducer) SetClock(now func() time.Time) {
	r.now = now
	r.lastFlush = now()
}

// Phase returns the current display phase.
func (r *StreamReducer) Phase() entities.DisplayPhase {
	return r.phase
}

// FlushCount returns the number of updates emitted so far.
func (r *StreamReducer) FlushCount() int {
	return r.flushes
}

// Feed folds one raw delta into the reducer and returns any updates that
// became due. Feeding after Finish is a no-op.
func (r *StreamReducer) Feed(delta string) []Update {
	if delta == "" || r.phase == entities.PhaseComplete {
		return nil
	}
	r.raw.WriteString(delta)

	var updates []Update

	switch r.phase {
	case entities.PhasePending:
		r.carry += delta
		open := r.config.OpenMarker
		switch {
		case strings.HasPrefix(r.carry, open):
			r.phase = entities.PhaseThinking
			rest := r.carry[len(open):]
			r.carry = ""
			updates = append(updates, r.snapshot(false, nil))
			updates = append(updates, r.consumeThinking(rest)...)
		case strings.HasPrefix(open, r.carry):
			// Still a possible marker prefix, keep buffering.
		default:
			r.phase = entities.PhaseAnswering
			rest := r.carry
			r.carry = ""
			updates = append(updates, r.consumeAnswer(rest)...)
		}
	case entities.PhaseThinking:
		updates = append(updates, r.consumeThinking(delta)...)
	case entities.PhaseAnswering:
		updates = append(updates, r.consumeAnswer(delta)...)
	}

	return updates
}

// Finish completes the stream. An unterminated reasoning marker discards the
// thinking segment: the entire raw stream, marker text included, becomes the
// answer. The tokens-per-second rate is recorded only here.
func (r *StreamReducer) Finish(tokensPerSecond *float64) Update {
	if r.phase != entities.PhaseAnswering {
		// pending or thinking: the marker never closed (or never resolved),
		// so everything observed is treated as plain answer content.
		r.thinking.Reset()
		r.answer.Reset()
		r.answer.WriteString(r.raw.String())
	}
	r.carry = ""
	r.unflushed = 0
	r.phase = entities.PhaseComplete
	r.flushes++
	return r.snapshot(true, tokensPerSecond)
}

// consumeThinking appends content to the thinking segment, watching for the
// close marker possibly split across deltas.
func (r *StreamReducer) consumeThinking(content string) []Update {
	r.carry += content
	closeMarker := r.config.CloseMarker

	if idx := strings.Index(r.carry, closeMarker); idx >= 0 {
		r.thinking.WriteString(r.carry[:idx])
		rest := r.carry[idx+len(closeMarker):]
		r.carry = ""
		r.phase = entities.PhaseAnswering
		updates := []Update{r.snapshot(false, nil)}
		updates = append(updates, r.consumeAnswer(rest)...)
		return updates
	}

	// Hold back the longest tail that could still begin the close marker.
	keep := partialMarkerLen(r.carry, closeMarker)
	emit := r.carry[:len(r.carry)-keep]
	r.carry = r.carry[len(r.carry)-keep:]
	if emit == "" {
		return nil
	}
	r.thinking.WriteString(emit)
	r.unflushed += len(emit)
	return r.maybeFlush()
}

func (r *StreamReducer) consumeAnswer(content string) []Update {
	if content == "" {
		return nil
	}
	r.answer.WriteString(content)
	r.unflushed += len(content)
	return r.maybeFlush()
}

func (r *StreamReducer) maybeFlush() []Update {
	if r.unflushed == 0 {
		return nil
	}
	if r.unflushed >= r.config.BatchThreshold || r.now().Sub(r.lastFlush) >= r.config.FlushInterval {
		return []Update{r.snapshot(false, nil)}
	}
	return nil
}

// snapshot emits the current state and resets the batch counters.
func (r *StreamReducer) snapshot(done bool, tps *float64) Update {
	r.unflushed = 0
	r.lastFlush = r.now()
	if !done {
		r.flushes++
	}
	return Update{
		Phase:           r.phase,
		Thinking:        r.thinking.String(),
		Answer:          r.answer.String(),
		TokensPerSecond: tps,
		Done:            done,
	}
}

// partialMarkerLen returns the length of the longest suffix of s that is a
// proper prefix of marker.
func partialMarkerLen(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(marker, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}
