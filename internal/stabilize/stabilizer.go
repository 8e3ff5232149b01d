package stabilize

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/metrics"
	"github.com/wanhive/overlay-hub/internal/route"
	"github.com/wanhive/overlay-hub/internal/wire"
)

// Stabilizer runs one background goroutine executing the six-step
// stabilization round against the hub's routing table, communicating
// exclusively over a Socketpair.
type Stabilizer struct {
	self    uint64
	table   *route.Table
	pair    *Socketpair
	period  time.Duration
	timeout time.Duration
	pause   time.Duration
	logger  *zap.Logger

	session uint8
	seq     uint16
	cursor  int
}

// New creates a Stabilizer for the given identity and routing table.
// period governs the pace between successful rounds, pause the pace
// after a failed round, and timeout bounds each individual
// request/response exchange over the socketpair.
func New(self uint64, table *route.Table, pair *Socketpair, period, timeout, pause time.Duration, logger *zap.Logger) *Stabilizer {
	return &Stabilizer{
		self:    self,
		table:   table,
		pair:    pair,
		period:  period,
		timeout: timeout,
		pause:   pause,
		logger:  logger.Named("stabilize"),
	}
}

// Run executes rounds until ctx is cancelled or the hub closes its end
// of the socketpair.
func (s *Stabilizer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		wait := s.period
		start := time.Now()
		err := s.round(ctx)
		metrics.StabilizationRoundDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("stabilization round failed", zap.Error(err))
			wait = s.pause
			select {
			case _, ok := <-s.pair.Responses:
				if !ok {
					return // the hub has closed its end of the socketpair
				}
			default:
			}
		} else {
			metrics.StabilizationRoundsTotal.Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Stabilizer) round(ctx context.Context) error {
	successor := s.table.Successor()

	// Step 1: ask the successor for its predecessor.
	askPred := s.newRequest(successor, wire.CommandNode, wire.QualifierGetPredecessor)
	resp, err := s.exchange(ctx, askPred)
	if err != nil {
		return fmt.Errorf("stabilize: ask predecessor of %d: %w", successor, err)
	}
	x, ok := decodeID(resp)
	if ok && x != 0 {
		// Step 2: adopt x as successor if it falls strictly between self
		// and the current successor.
		if route.Between(x, s.self, successor, false) {
			s.table.SetSuccessor(x, false)
			successor = x
		}
	}

	// Step 3: notify the (possibly updated) successor with self.
	notify := s.newRequest(successor, wire.CommandNode, wire.QualifierNotify)
	if err := encodeID(notify, s.self); err != nil {
		return fmt.Errorf("stabilize: encode notify payload: %w", err)
	}
	if _, err := s.exchange(ctx, notify); err != nil {
		s.logger.Warn("notify failed", zap.Uint64("successor", successor), zap.Error(err))
	}

	// Step 4: fix one finger per round.
	s.cursor = (s.cursor + 1) % s.table.Size()
	start := s.table.Finger(s.cursor).Start
	findReq := s.newRequest(successor, wire.CommandOverlay, wire.QualifierFindSuccessor)
	if err := encodeID(findReq, start); err != nil {
		return fmt.Errorf("stabilize: encode find-successor payload: %w", err)
	}
	findResp, err := s.exchange(ctx, findReq)
	if err != nil {
		s.logger.Warn("finger fix failed", zap.Int("finger", s.cursor), zap.Error(err))
	} else if id, ok := decodeID(findResp); ok {
		s.table.SetFinger(s.cursor, id, true)
	}

	// Step 5: ping the controller.
	ping := s.newRequest(wire.ControllerID, wire.CommandOverlay, wire.QualifierPing)
	if _, err := s.exchange(ctx, ping); err != nil {
		s.logger.Warn("controller ping failed", zap.Error(err))
	}

	return nil
}

func (s *Stabilizer) newRequest(dst uint64, cmd, qualifier uint8) *wire.Packet {
	s.seq++
	p := wire.New()
	p.Source = s.self
	p.Destination = dst
	p.Sequence = s.seq
	p.Session = s.session
	p.Command = cmd
	p.Qualifier = qualifier
	p.Status = wire.StatusRequest
	p.Length = wire.HeaderSize
	return p
}

// exchange sends req over the socketpair and waits for the matching
// response, dropping anything stale, bounded by s.timeout.
func (s *Stabilizer) exchange(ctx context.Context, req *wire.Packet) (*wire.Packet, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case s.pair.Requests <- req:
	case <-reqCtx.Done():
		return nil, reqCtx.Err()
	}

	for {
		select {
		case resp, ok := <-s.pair.Responses:
			if !ok {
				return nil, fmt.Errorf("stabilize: socketpair closed")
			}
			if resp.Sequence != req.Sequence || resp.Session != req.Session ||
				resp.Command != req.Command || resp.Qualifier != req.Qualifier {
				continue
			}
			if resp.Status != wire.StatusAccepted {
				return nil, fmt.Errorf("stabilize: request rejected (status=%d)", resp.Status)
			}
			return resp, nil
		case <-reqCtx.Done():
			return nil, reqCtx.Err()
		}
	}
}

func encodeID(p *wire.Packet, id uint64) error {
	w := wire.NewWriter(p)
	if err := w.PutUint64(id); err != nil {
		return fmt.Errorf("stabilize: encode id: %w", err)
	}
	p.Length = wire.HeaderSize + uint16(w.Len())
	return p.PackHeader()
}

func decodeID(p *wire.Packet) (uint64, bool) {
	r := wire.NewReader(p)
	if r.Remaining() < 8 {
		return 0, false
	}
	v, err := r.GetUint64()
	if err != nil {
		return 0, false
	}
	return v, true
}
