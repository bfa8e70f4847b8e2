package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fatture/internal/gateway"
	"fatture/internal/log"
)

// MirrorConfig holds configuration for the mirror processor
type MirrorConfig struct {
	// PollInterval is how often the destination is brought in line (default: 5m)
	PollInterval time.Duration

	// Tables limits which tables are mirrored (default: all)
	Tables []gateway.Table
}

// DefaultMirrorConfig returns sensible defaults
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		PollInterval: 5 * time.Minute,
		Tables:       gateway.Tables(),
	}
}

// MirrorStats counts the writes one pass made to the destination.
type MirrorStats struct {
	Inserted int
	Updated  int
	Deleted  int
}

func (s MirrorStats) Changed() bool { return s.Inserted+s.Updated+s.Deleted > 0 }

func (s *MirrorStats) add(o MirrorStats) {
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Deleted += o.Deleted
}

// MirrorProcessor copies every table of a primary store into a secondary
// one, typically the local SQLite database into a Google spreadsheet the
// user can browse.
type MirrorProcessor struct {
	src    gateway.Gateway
	dst    gateway.Gateway
	config MirrorConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    MirrorStats
}

func NewMirrorProcessor(src, dst gateway.Gateway, config MirrorConfig, logger *log.Logger) *MirrorProcessor {
	if logger == nil {
		logger = log.Default()
	}
	if len(config.Tables) == 0 {
		config.Tables = gateway.Tables()
	}
	return &MirrorProcessor{
		src:    src,
		dst:    dst,
		config: config,
		logger: logger.WithComponent(log.ComponentWorker).With(log.FieldOperation, "mirror"),
	}
}

// Start begins the mirror loop. Returns an error if already running.
func (p *MirrorProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("mirror processor is already running")
	}
	if p.config.PollInterval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("invalid poll interval %v", p.config.PollInterval)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Mirror processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *MirrorProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Mirror processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Mirror processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *MirrorProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastStats returns the result of the most recent pass.
func (p *MirrorProcessor) LastStats() MirrorStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *MirrorProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.pass(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx)
		}
	}
}

func (p *MirrorProcessor) pass(ctx context.Context) {
	if _, err := p.SyncOnce(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Mirror pass failed", log.FieldError, err.Error())
	}
}

// SyncOnce makes the destination tables equal to the source tables. A
// failing table does not stop the others.
func (p *MirrorProcessor) SyncOnce(ctx context.Context) (MirrorStats, error) {
	var (
		total MirrorStats
		errs  []error
	)
	for _, table := range p.config.Tables {
		st, err := p.syncTable(ctx, table)
		total.add(st)
		if err != nil {
			errs = append(errs, fmt.Errorf("mirror %s: %w", table, err))
		}
	}

	p.mu.Lock()
	p.last = total
	p.mu.Unlock()

	if total.Changed() {
		p.logger.InfoContext(ctx, "Mirrored tables",
			"inserted", total.Inserted,
			"updated", total.Updated,
			"deleted", total.Deleted)
	}
	return total, errors.Join(errs...)
}

func (p *MirrorProcessor) syncTable(ctx context.Context, table gateway.Table) (MirrorStats, error) {
	var st MirrorStats
	srcRows, err := p.src.List(ctx, table, gateway.Order{})
	if err != nil {
		return st, err
	}
	dstRows, err := p.dst.List(ctx, table, gateway.Order{})
	if err != nil {
		return st, err
	}

	existing := make(map[string]gateway.Row, len(dstRows))
	for _, r := range dstRows {
		existing[r.ID()] = r
	}

	var errs []error
	for _, r := range srcRows {
		id := r.ID()
		cur, ok := existing[id]
		delete(existing, id)
		switch {
		case !ok:
			if _, err := p.dst.Insert(ctx, table, r); err != nil {
				errs = append(errs, err)
				continue
			}
			st.Inserted++
		case !sameContent(r, cur):
			if _, err := p.dst.Update(ctx, table, id, r); err != nil {
				errs = append(errs, err)
				continue
			}
			st.Updated++
		}
	}
	for id := range existing {
		if err := p.dst.Delete(ctx, table, id); err != nil {
			errs = append(errs, err)
			continue
		}
		st.Deleted++
	}
	return st, errors.Join(errs...)
}

// sameContent compares two rows by their printed values, ignoring the
// bookkeeping timestamps each store maintains itself. Stores disagree on
// value types (a spreadsheet returns everything as text).
func sameContent(a, b gateway.Row) bool {
	for k, v := range a {
		if k == gateway.ColumnUpdatedAt || k == gateway.ColumnCreatedAt {
			continue
		}
		if printed(v) != printed(b[k]) {
			return false
		}
	}
	for k, v := range b {
		if k == gateway.ColumnUpdatedAt || k == gateway.ColumnCreatedAt {
			continue
		}
		if _, ok := a[k]; !ok && printed(v) != "" {
			return false
		}
	}
	return true
}

func printed(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
