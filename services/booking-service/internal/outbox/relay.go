package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/agendei/libs/db"
	"github.com/md-rashed-zaman/agendei/libs/kafkax"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/metrics"
	"github.com/segmentio/kafka-go"
)

type RelayConfig struct {
	Brokers     string
	PollEvery   time.Duration
	BatchSize   int
	MaxAttempts int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Relay moves committed outbox rows to Kafka. Delivery is at least once; consumers dedupe
// on the event_id header.
type Relay struct {
	pool    *db.Pool
	logger  *slog.Logger
	metrics *metrics.Booking
	brokers []string
	cfg     RelayConfig
}

func NewRelay(pool *db.Pool, logger *slog.Logger, m *metrics.Booking, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	return &Relay{
		pool:    pool,
		logger:  logger.With("component", "outbox-relay"),
		metrics: m,
		brokers: kafkax.SplitBrokers(cfg.Brokers),
		cfg:     cfg,
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by another poll.
func (r *Relay) Run(ctx context.Context) {
	if len(r.brokers) == 0 {
		r.logger.Warn("outbox relay disabled, no kafka brokers configured")
		return
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(r.brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		n, err := r.relayOnce(ctx, w)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("outbox relay failed", "err", err)
		}
		wait := r.cfg.PollEvery
		if err == nil && n == r.cfg.BatchSize {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// relayOnce sends one batch and reports how many rows it claimed.
func (r *Relay) relayOnce(ctx context.Context, w messageWriter) (int, error) {
	var claimed, sent int
	var parked []int64
	err := r.pool.RetryTx(ctx, db.TxOptions{MaxAttempts: 1}, func(tx pgx.Tx) error {
		batch, err := claim(ctx, tx, r.cfg.BatchSize, r.cfg.MaxAttempts)
		if err != nil || len(batch) == 0 {
			return err
		}
		claimed = len(batch)
		msgs := make([]kafka.Message, len(batch))
		for i, p := range batch {
			msgs[i] = p.kafkaMessage(ctx)
		}
		ok, failed, cause := partition(batch, w.WriteMessages(ctx, msgs...))
		if err := markSent(ctx, tx, ok); err != nil {
			return err
		}
		sent = len(ok)
		if len(failed) > 0 {
			r.logger.Warn("outbox messages not delivered", "count", len(failed), "err", cause)
			parked, err = markFailed(ctx, tx, failed, cause.Error(), r.cfg.MaxAttempts)
			return err
		}
		return nil
	})
	if err != nil {
		return claimed, err
	}
	r.metrics.OutboxEvents("published", sent)
	r.metrics.OutboxEvents("failed", claimed-sent)
	if len(parked) > 0 {
		r.metrics.OutboxEvents("parked", len(parked))
		r.logger.Error("outbox messages parked after max attempts", "seqs", parked, "max_attempts", r.cfg.MaxAttempts)
	}
	return claimed, nil
}

// partition splits a batch by the outcome of one WriteMessages call. kafka-go reports per
// message failures as WriteErrors aligned with the input; any other error fails the batch.
func partition(batch []pending, err error) (sent, failed []int64, cause error) {
	if err == nil {
		for _, p := range batch {
			sent = append(sent, p.Seq)
		}
		return sent, nil, nil
	}
	var werrs kafka.WriteErrors
	if !errors.As(err, &werrs) || len(werrs) != len(batch) {
		for _, p := range batch {
			failed = append(failed, p.Seq)
		}
		return nil, failed, err
	}
	for i, p := range batch {
		if werrs[i] == nil {
			sent = append(sent, p.Seq)
			continue
		}
		failed = append(failed, p.Seq)
		if cause == nil {
			cause = werrs[i]
		}
	}
	return sent, failed, cause
}
