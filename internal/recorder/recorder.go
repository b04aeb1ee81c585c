package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opsboard/realtime/internal/database"
	"github.com/opsboard/realtime/internal/event"
	"github.com/opsboard/realtime/internal/queue"
	"github.com/opsboard/realtime/internal/realtime"
)

// Config holds batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Stats holds recorder counters.
type Stats struct {
	Received  int64
	Inserts   int64
	Conflicts int64
	Errors    int64 // Failed batches
	Flushes   int64
	Skipped   int64 // Events whose payload could not be encoded
}

// BatchSender is satisfied by *pgxpool.Pool.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Source is the subset of *realtime.Client the recorder subscribes through.
type Source interface {
	Subscribe(name event.Name, handler realtime.Handler) *realtime.Subscription
	Unsubscribe(sub *realtime.Subscription)
}

type row struct {
	ID         uuid.UUID
	Event      event.Name
	ReceivedAt time.Time
	Payload    []byte
}

const insertSQL = `
	INSERT INTO ` + database.EventsTable + ` (id, event, received_at, payload)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING
`

// Recorder writes events to the realtime_events table.
type Recorder struct {
	cfg    Config
	logger *slog.Logger
	db     BatchSender
	now    func() time.Time

	input *queue.Queue[row]
	subs  []*realtime.Subscription
	src   Source

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
}

// New creates a Recorder.
func New(cfg Config, db BatchSender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Recorder{
		cfg:    cfg,
		logger: logger.With("component", "recorder"),
		db:     db,
		now:    time.Now,
		input:  queue.New[row](cfg.BatchSize),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// Attach subscribes the recorder to every known event name on src.
func (r *Recorder) Attach(src Source) {
	r.src = src
	for _, name := range event.Known() {
		if sub := src.Subscribe(name, r.Record); sub != nil {
			r.subs = append(r.subs, sub)
		}
	}
}

// Record enqueues e for persistence. It never blocks.
func (r *Recorder) Record(e event.Event) {
	rw, err := r.transform(e)
	if err != nil {
		r.logger.Warn("skipping event", "event", e.EventName(), "error", err)
		r.batchMu.Lock()
		r.stats.Skipped++
		r.batchMu.Unlock()
		return
	}

	if r.input.Push(rw) {
		r.batchMu.Lock()
		r.stats.Received++
		r.batchMu.Unlock()
	}
}

// Start begins consuming rows and writing to the database.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.consumeLoop()
	go r.flushLoop()

	r.logger.Info("recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop detaches from the source, drains queued rows and flushes them.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	if r.src != nil {
		for _, sub := range r.subs {
			r.src.Unsubscribe(sub)
		}
		r.subs = nil
	}

	// Closing the queue lets consumeLoop drain what is left and exit.
	r.input.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		r.logger.Info("recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
		err = ctx.Err()
	}

	if r.cancel != nil {
		r.cancel()
	}

	// Final flush
	r.flushWith(ctx)

	return err
}

// Stats returns current counters.
func (r *Recorder) Stats() Stats {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.stats
}

func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		rw, ok := r.input.Pop()
		if !ok {
			return
		}
		r.add(rw)
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flushWith(r.ctx)
		}
	}
}

// add appends a row to the batch, flushing when full.
func (r *Recorder) add(rw row) {
	r.batchMu.Lock()
	r.batch = append(r.batch, rw)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flushWith(r.ctx)
	}
}

func (r *Recorder) transform(e event.Event) (row, error) {
	var payload []byte
	if raw, ok := e.(event.Raw); ok {
		payload = raw.Data
		if len(payload) == 0 {
			payload = []byte("null")
		}
	} else {
		b, err := json.Marshal(e)
		if err != nil {
			return row{}, fmt.Errorf("marshal payload: %w", err)
		}
		payload = b
	}

	return row{
		ID:         uuid.New(),
		Event:      e.EventName(),
		ReceivedAt: r.now().UTC(),
		Payload:    payload,
	}, nil
}

func (r *Recorder) flushWith(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]row, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	if r.db == nil {
		return
	}

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.stats.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.stats.Inserts += int64(len(batch) - conflicts)
	r.stats.Conflicts += int64(conflicts)
	r.stats.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	if ctx == nil || ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	batch := &pgx.Batch{}
	for _, rw := range rows {
		batch.Queue(insertSQL, rw.ID, string(rw.Event), rw.ReceivedAt, rw.Payload)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
