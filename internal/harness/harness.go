package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/hybridseq/internal/fetch"
	"github.com/roach88/hybridseq/internal/ids"
	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/memstore"
	"github.com/roach88/hybridseq/internal/pending"
	"github.com/roach88/hybridseq/internal/reindex"
	"github.com/roach88/hybridseq/internal/sequence"
	"github.com/roach88/hybridseq/internal/store"
	"github.com/roach88/hybridseq/internal/testutil"
)

// stepTimeout bounds how long a step waits for the writer loop.
const stepTimeout = 10 * time.Second

var errWriterHeld = errors.New("writer loop is held until a commit step")

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and ID generator.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	remote   *memstore.Store
	writer   *faultyWriter
	network  *fetch.Switch
	seq      *sequence.Sequence
	logger   *slog.Logger

	// tickets are inserts queued while the writer is held.
	tickets []*sequence.Ticket

	running bool
	cancel  context.CancelFunc
	done    chan error
}

// Option configures Run.
type Option func(*Harness)

// WithLogger routes engine logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory SQLite store as the local
// source and a memstore as the cloud mirror, subscribed for realtime
// changes.
//
// Execution flow:
// 1. Seed both stores and load the first page
// 2. Start the writer loop unless writes are held
// 3. Execute steps, recording the rendered view after each
// 4. Evaluate assertions against the final state
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		network:  fetch.NewSwitch(true),
	}
	for _, opt := range opts {
		opt(h)
	}

	st, err := store.Open(":memory:", store.WithStride(scenario.Stride))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st
	h.writer = newFaultyWriter(st)
	h.remote = memstore.New(memstore.WithStride(scenario.Stride))

	ctx := context.Background()
	if err := h.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed stores: %w", err)
	}

	h.seq = sequence.New(scenario.Sequence, nil, sequence.Deps{
		Local:   st.PageQuery(item.SourceLocal, scenario.PageSize),
		Remote:  h.remote.Query(scenario.PageSize),
		Writer:  h.writer,
		Network: h.network,
		IDs:     ids.NewSequentialGenerator("seg"),
		Clock:   testutil.NewDeterministicClock(),
		Logger:  h.logger,
	}, sequence.WithStride(scenario.Stride))
	unsubscribe := h.remote.Subscribe(h.seq.ApplyRemoteChange)
	defer unsubscribe()

	if err := h.seq.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load sequence: %w", err)
	}
	if !scenario.HoldWrites {
		h.startWriter()
	}
	defer h.stopWriter()

	result := NewResult()
	for i, step := range scenario.Steps {
		id, err := h.execute(ctx, step)
		if err != nil {
			h.logger.Info("step failed", "step", i+1, "op", step.Op, "id", id, "error", err)
		}
		switch {
		case err != nil && !step.ExpectError:
			result.AddError(fmt.Sprintf("step %d (%s): %v", i+1, step.Op, err))
		case err == nil && step.ExpectError:
			result.AddError(fmt.Sprintf("step %d (%s): expected an error", i+1, step.Op))
		}

		state := h.seq.State()
		result.Trace = append(result.Trace, TraceEvent{
			Step:   i + 1,
			Op:     step.Op,
			ID:     id,
			Failed: err != nil,
			Cursor: state.Cursor,
			View:   describe(state.Items, statuses(state.Pending)),
			err:    err,
		})
	}

	if err := h.capture(ctx, result); err != nil {
		return nil, err
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context) error {
	for _, s := range h.scenario.Local {
		if err := h.store.Put(ctx, h.seedItem(s.ID, s.Key, s.Name, item.SourceLocal)); err != nil {
			return err
		}
	}
	for _, s := range h.scenario.Remote {
		h.remote.Put(h.seedItem(s.ID, s.Key, s.Name, item.SourceRemote))
	}
	return nil
}

func (h *Harness) seedItem(id string, key int64, name string, src item.Source) item.Item {
	if name == "" {
		name = id
	}
	return item.Item{
		ID:          id,
		SequenceKey: h.scenario.Sequence,
		OrderKey:    key,
		Payload:     item.Payload{Name: name, Kind: item.KindText},
		Source:      src,
		CreatedAt:   testutil.Epoch,
	}
}

// execute runs one step and returns the ID it touched.
func (h *Harness) execute(ctx context.Context, step Step) (string, error) {
	switch step.Op {
	case OpInsert:
		tk, err := h.seq.InsertAt(ctx, h.index(step), item.Payload{Name: step.Name, Kind: item.KindText})
		if err != nil {
			return "", err
		}
		return tk.ID, h.await(ctx, tk)

	case OpRecord:
		return h.seq.StartRecording(h.index(step))

	case OpStop:
		tk, err := h.seq.StopRecording(ctx, step.ID, item.Payload{
			Name:     step.Name,
			Kind:     item.KindAudio,
			AudioRef: "audio/" + step.ID,
		})
		if err != nil {
			return step.ID, err
		}
		return step.ID, h.await(ctx, tk)

	case OpRetry:
		tk, err := h.seq.Retry(ctx, step.ID)
		if err != nil {
			return step.ID, err
		}
		return step.ID, h.await(ctx, tk)

	case OpDiscard:
		return step.ID, h.seq.Discard(step.ID)

	case OpDelete:
		if !h.running && !h.discardable(step.ID) {
			return step.ID, errWriterHeld
		}
		return step.ID, h.withTimeout(ctx, func(ctx context.Context) error {
			return h.seq.Delete(ctx, step.ID)
		})

	case OpMove:
		if !h.running {
			return step.ID, errWriterHeld
		}
		return step.ID, h.withTimeout(ctx, func(ctx context.Context) error {
			return h.seq.Move(ctx, step.ID, *step.Index)
		})

	case OpRename:
		if !h.running && !h.recording(step.ID) {
			return step.ID, errWriterHeld
		}
		return step.ID, h.withTimeout(ctx, func(ctx context.Context) error {
			return h.seq.Rename(ctx, step.ID, step.Name)
		})

	case OpCommit:
		h.startWriter()
		var errs []error
		for _, tk := range h.tickets {
			if err := h.await(ctx, tk); err != nil {
				errs = append(errs, err)
			}
		}
		h.tickets = nil
		return "", errors.Join(errs...)

	case OpCompact:
		n, err := h.store.Compact(ctx, h.scenario.Sequence)
		if err != nil {
			return "", err
		}
		h.logger.Info("sequence compacted", "changed", n)
		return "", h.seq.Refresh(ctx)

	case OpRemotePut:
		h.remote.Put(h.seedItem(step.ID, step.Key, step.Name, item.SourceRemote))
		return step.ID, nil

	case OpRemoteDelete:
		if !h.remote.Remove(step.ID) {
			return step.ID, fmt.Errorf("remote delete %s: %w", step.ID, item.ErrNotFound)
		}
		return step.ID, nil

	case OpFailNextWrite:
		msg := step.Error
		if msg == "" {
			msg = "injected write failure"
		}
		var err error = errors.New(msg)
		if step.Conflict {
			err = &reindex.WriteConflictError{SequenceKey: h.scenario.Sequence, Index: -1, Err: err}
		}
		h.writer.failNext(err)
		return "", nil

	case OpRefresh:
		return "", h.seq.Refresh(ctx)

	case OpNextPage:
		return "", h.seq.FetchNextPage(ctx)

	case OpSetCursor:
		h.seq.SetCursor(*step.Index)
		return "", nil

	case OpOffline:
		offline := step.Enabled == nil || *step.Enabled
		h.network.Set(!offline)
		return "", h.seq.Refresh(ctx)
	}
	return "", fmt.Errorf("unknown op %q", step.Op)
}

// index resolves the target position of an insert or record.
func (h *Harness) index(step Step) int {
	if step.Index != nil {
		return *step.Index
	}
	return h.seq.Cursor()
}

// await waits for an insert to commit, or parks it while writes are held.
func (h *Harness) await(ctx context.Context, tk *sequence.Ticket) error {
	if !h.running {
		h.tickets = append(h.tickets, tk)
		return nil
	}
	return h.withTimeout(ctx, func(ctx context.Context) error {
		_, err := tk.Wait(ctx)
		return err
	})
}

func (h *Harness) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	return fn(ctx)
}

func (h *Harness) discardable(id string) bool {
	e, ok := h.seq.Pending(id)
	return ok && (e.Status == pending.Recording || e.Status == pending.Failed)
}

func (h *Harness) recording(id string) bool {
	e, ok := h.seq.Pending(id)
	return ok && e.Status == pending.Recording
}

func (h *Harness) startWriter() {
	if h.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	h.running = true
	go func() { h.done <- h.seq.Run(ctx) }()
}

func (h *Harness) stopWriter() {
	if !h.running {
		h.seq.Stop()
		return
	}
	h.cancel()
	<-h.done
	h.running = false
}

// capture copies the final state into result.
func (h *Harness) capture(ctx context.Context, result *Result) error {
	state := h.seq.State()
	result.Items = state.Items
	result.Cursor = state.Cursor
	result.Pending = statuses(state.Pending)

	stored, err := h.store.ReadSequence(ctx, h.scenario.Sequence)
	if err != nil {
		return fmt.Errorf("failed to read final store state: %w", err)
	}
	result.Stored = stored
	return nil
}

func statuses(entries []pending.Entry) map[string]pending.Status {
	out := make(map[string]pending.Status, len(entries))
	for _, e := range entries {
		out[e.Item.ID] = e.Status
	}
	return out
}
