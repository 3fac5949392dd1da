package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aretw0/settle/internal/dto"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// Runner processes a stream of JSON-lines activations and polls every
// conversation that buffered a message until it settles.
type Runner struct {
	poller *Poller
	opts   options

	mu     sync.Mutex
	active map[domain.ConversationKey]*pending

	outMu sync.Mutex
	enc   *json.Encoder
}

// pending tracks the polling goroutine of one conversation. last is the most
// recent raw message and its wait outcome; dirty means it arrived after the
// goroutine took its copy.
type pending struct {
	act   domain.Activation
	out   *domain.Outcome
	dirty bool
}

// NewRunner creates a Runner over engine.
func NewRunner(engine ports.Engine, opts ...Option) *Runner {
	o := buildOptions(opts)
	return &Runner{
		poller: &Poller{engine: engine, opts: o},
		opts:   o,
		active: make(map[domain.ConversationKey]*pending),
	}
}

// Run reads activations from in until EOF or ctx is done, then waits for open
// conversations to settle. Every outcome is written to out as one JSON line:
// the immediate outcome of each input line and the final outcome of each
// polled conversation. Per-activation failures are written, not returned.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	r.enc = json.NewEncoder(out)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.concurrency)

	limit := lineLimit(r.opts.maxLineSize)
	reader := bufio.NewReader(in)
	line := 0

	for {
		if err := gctx.Err(); err != nil {
			break
		}
		raw, readErr := reader.ReadBytes('\n')
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 {
			line++
			if err := r.handleLine(gctx, g, line, raw, limit); err != nil {
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fmt.Errorf("read input: %w", readErr)
		}
	}

	return g.Wait()
}

func (r *Runner) handleLine(ctx context.Context, g *errgroup.Group, line int, raw []byte, limit int) error {
	if err := checkLine(raw, limit); err != nil {
		return r.emit(dto.FromError(fmt.Sprintf("line-%d", line), err))
	}
	var req dto.ActivationRequest
	if err := dto.Unmarshal(raw, &req); err != nil {
		return r.emit(dto.FromError(fmt.Sprintf("line-%d", line), fmt.Errorf("decode line %d: %w", line, err)))
	}
	act, err := req.ToDomain()
	if err != nil {
		return r.emit(dto.FromError(req.ID, err))
	}

	out, err := r.poller.Process(ctx, act)
	if err != nil {
		return r.emit(dto.FromError(act.ID, err))
	}
	if err := r.emit(dto.FromOutcome(act.ID, out)); err != nil {
		return err
	}

	if out.Classification == domain.Wait && out.Failure == nil && !act.IsPoll() {
		r.track(ctx, g, act, out)
	}
	return nil
}

// track starts a polling goroutine for the conversation unless one is running,
// in which case that goroutine is told to keep going.
func (r *Runner) track(ctx context.Context, g *errgroup.Group, act domain.Activation, out *domain.Outcome) {
	key := domain.ConversationKey(out.Key)

	r.mu.Lock()
	if p, ok := r.active[key]; ok {
		p.act, p.out, p.dirty = act, out, true
		r.mu.Unlock()
		return
	}
	r.active[key] = &pending{act: act, out: out}
	r.mu.Unlock()

	g.Go(func() error {
		return r.follow(ctx, key, act, out)
	})
}

func (r *Runner) follow(ctx context.Context, key domain.ConversationKey, act domain.Activation, out *domain.Outcome) error {
	for {
		final, err := r.poller.Settle(ctx, act, out)

		r.mu.Lock()
		p := r.active[key]
		if err == nil && p.dirty {
			// A message arrived during the last poll; its window is open again.
			settledBy := act.ID
			act, out = p.act, p.out
			p.dirty = false
			r.mu.Unlock()
			if final.Classification == domain.Ready {
				if err := r.emit(dto.FromOutcome(settledBy, final)); err != nil {
					return err
				}
			}
			continue
		}
		delete(r.active, key)
		r.mu.Unlock()

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return r.emit(dto.FromError(act.ID, err))
		}
		return r.emit(dto.FromOutcome(act.ID, final))
	}
}

func (r *Runner) emit(resp dto.ActivationResponse) error {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if err := r.enc.Encode(resp); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
