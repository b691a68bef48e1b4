package usage

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/models"
	"go.uber.org/zap"
)

const insertRecordSQL = `
	INSERT INTO usage_records (
		request_id, app_id, feature, environment, provider, model,
		input_tokens, output_tokens, cost_usd, latency_ms, outcome,
		denied_reason, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// PostgresSink writes usage records through a buffered channel drained by
// worker goroutines, keeping the insert off the request path. When the
// buffer is full the record is written synchronously instead of dropped;
// usage records back budget accounting and must not be lossy.
type PostgresSink struct {
	db      *sql.DB
	logger  *zap.Logger
	buffer  chan *models.UsageRecord
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

func NewPostgresSink(db *sql.DB, cfg config.UsageStoreConfig, logger *zap.Logger) *PostgresSink {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	s := &PostgresSink{
		db:     db,
		logger: logger,
		buffer: make(chan *models.UsageRecord, bufferSize),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// OpenDB opens and configures the usage database connection pool.
func OpenDB(cfg config.UsageStoreConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, db.Ping()
}

func (s *PostgresSink) Record(ctx context.Context, rec *models.UsageRecord) error {
	select {
	case s.buffer <- rec:
		return nil
	default:
		// Buffer saturated; take the latency hit rather than losing the row.
		return s.insert(ctx, rec)
	}
}

func (s *PostgresSink) worker() {
	defer s.wg.Done()
	for rec := range s.buffer {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.insert(ctx, rec); err != nil {
			s.logger.Error("usage record insert failed",
				zap.String("request_id", rec.RequestID),
				zap.Error(err))
		}
		cancel()
	}
}

func (s *PostgresSink) insert(ctx context.Context, rec *models.UsageRecord) error {
	_, err := s.db.ExecContext(ctx, insertRecordSQL,
		rec.RequestID, rec.AppID, rec.Feature, rec.Environment, rec.Provider,
		rec.Model, rec.InputTokens, rec.OutputTokens, rec.CostUSD,
		rec.LatencyMs, rec.Outcome, rec.DeniedReason, rec.CreatedAt,
	)
	return err
}

// Close drains the buffer and waits for workers to finish.
func (s *PostgresSink) Close() error {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.buffer)
	}
	s.closeMu.Unlock()
	s.wg.Wait()
	return s.db.Close()
}
