package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/hybridseq/internal/fetch"
	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/metrics"
	"github.com/roach88/hybridseq/internal/sequence"
	"github.com/roach88/hybridseq/internal/store"
)

// session is one open sequence with its writer loop running.
type session struct {
	opts     *RootOptions
	logger   *slog.Logger
	local    *store.Store
	remote   *store.Store
	seq      *sequence.Sequence
	registry *prometheus.Registry

	cancel context.CancelFunc
	done   chan error
}

// openSession opens the configured stores, loads every page of the
// sequence and starts its writer loop. The caller must close it.
func openSession(ctx context.Context, opts *RootOptions, sequenceKey string) (*session, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening database", "path", cfg.DBPath)
	local, err := store.Open(cfg.DBPath, store.WithStride(cfg.Stride))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err).WithKind(CodeStoreUnavailable)
	}

	s := &session{
		opts:     opts,
		logger:   logger,
		local:    local,
		registry: prometheus.NewRegistry(),
	}

	var remoteQuery fetch.QueryFunc
	if cfg.RemotePath != "" {
		logger.Debug("opening cloud mirror", "path", cfg.RemotePath)
		remote, err := store.Open(cfg.RemotePath, store.WithStride(cfg.Stride))
		if err != nil {
			local.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open cloud mirror", err).WithKind(CodeStoreUnavailable)
		}
		s.remote = remote
		remoteQuery = remote.PageQuery(item.SourceRemote, cfg.PageSize)
	}

	s.seq = sequence.New(sequenceKey, nil, sequence.Deps{
		Local:   local.PageQuery(item.SourceLocal, cfg.PageSize),
		Remote:  remoteQuery,
		Writer:  local,
		Network: fetch.NewSwitch(!cfg.Offline),
		Logger:  logger,
		Metrics: metrics.New(s.registry),
	},
		sequence.WithStride(cfg.Stride),
		sequence.WithMaxAttempts(cfg.MaxWriteAttempts),
		sequence.WithDataType(cfg.DataType),
		sequence.WithLazyRemote(cfg.LazyRemote),
	)

	if err := s.loadAll(ctx); err != nil {
		s.closeStores()
		return nil, WrapExitError(ExitFailure, "failed to load sequence", err).WithKind(CodeLoadFailed)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- s.seq.Run(runCtx) }()
	return s, nil
}

// loadAll loads the first page and then every remaining page, so indexes
// given on the command line address the whole sequence.
func (s *session) loadAll(ctx context.Context) error {
	if err := s.seq.Load(ctx); err != nil {
		return err
	}
	for s.seq.HasNextPage() {
		before := len(s.seq.Items())
		if err := s.seq.FetchNextPage(ctx); err != nil {
			return err
		}
		if len(s.seq.Items()) == before {
			break
		}
	}
	return nil
}

// summary describes what the session loaded, for verbose output.
func (s *session) summary() string {
	st := s.seq.State()
	local, remote := 0, 0
	for _, it := range st.Items {
		switch it.Source {
		case item.SourceLocal:
			local++
		case item.SourceRemote:
			remote++
		}
	}
	mirror := "no cloud mirror"
	switch {
	case s.remote != nil && !st.IsOnline:
		mirror = "cloud mirror offline"
	case s.remote != nil:
		mirror = "cloud mirror " + s.opts.Config.RemotePath
	}
	return fmt.Sprintf("Loaded %s: %d local, %d cloud (%s, %s)",
		s.seq.Key(), local, remote, s.opts.Config.DBPath, mirror)
}

// Close stops the writer loop, closes the stores and writes the metrics
// file when one was requested.
func (s *session) Close() error {
	s.seq.Stop()
	if err := <-s.done; err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("writer loop ended with error", "error", err)
	}
	s.cancel()

	var errs []error
	if path := s.opts.MetricsFile; path != "" {
		if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	errs = append(errs, s.closeStores())
	return errors.Join(errs...)
}

func (s *session) closeStores() error {
	var errs []error
	if err := s.local.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if s.remote != nil {
		if err := s.remote.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cloud mirror: %w", err))
		}
	}
	return errors.Join(errs...)
}

// itemView is the printed form of one rendered item.
type itemView struct {
	ID       string `json:"id"`
	OrderKey int64  `json:"order_key"`
	Source   string `json:"source"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
}

func viewOf(it item.Item) itemView {
	return itemView{
		ID:       it.ID,
		OrderKey: it.OrderKey,
		Source:   string(it.Source),
		Name:     it.Payload.Name,
		Kind:     string(it.Payload.Kind),
	}
}

func viewsOf(items []item.Item) []itemView {
	out := make([]itemView, len(items))
	for i, it := range items {
		out[i] = viewOf(it)
	}
	return out
}
