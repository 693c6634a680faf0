package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/agendei/libs/db"
	otelx "github.com/md-rashed-zaman/agendei/libs/otel"
)

// Store appends messages to outbox_messages.
type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// Add queues msg in a transaction of its own.
func (s *Store) Add(ctx context.Context, msg Message) error {
	return s.pool.RetryTx(ctx, db.TxOptions{}, func(tx pgx.Tx) error {
		return AddTx(ctx, tx, msg)
	})
}

// AddTx queues msg as part of tx, stamped with the trace context of ctx.
func AddTx(ctx context.Context, tx pgx.Tx, msg Message) error {
	parent, state := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_messages (topic, message_key, payload, traceparent, tracestate)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.Topic, msg.Key, msg.Payload, parent, state)
	return err
}

// claim locks the oldest unsent rows that still have attempts left. Rows locked by another
// relay are skipped rather than waited on.
func claim(ctx context.Context, tx pgx.Tx, limit, maxAttempts int) ([]pending, error) {
	rows, err := tx.Query(ctx,
		`SELECT seq, message_id::text AS message_id, topic, message_key, payload, traceparent, tracestate, attempts
		 FROM outbox_messages
		 WHERE sent_at IS NULL AND attempts < $2
		 ORDER BY seq
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit, maxAttempts)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[pending])
}

func markSent(ctx context.Context, tx pgx.Tx, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_messages SET sent_at = now() WHERE seq = ANY($1)`, seqs)
	return err
}

// markFailed charges one attempt to each row and returns the seqs that have now used up
// maxAttempts and will no longer be claimed.
func markFailed(ctx context.Context, tx pgx.Tx, seqs []int64, cause string, maxAttempts int) ([]int64, error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	rows, err := tx.Query(ctx,
		`UPDATE outbox_messages SET attempts = attempts + 1, last_error = $2
		 WHERE seq = ANY($1)
		 RETURNING seq, attempts`,
		seqs, cause)
	if err != nil {
		return nil, err
	}
	var parked []int64
	var seq int64
	var attempts int
	_, err = pgx.ForEachRow(rows, []any{&seq, &attempts}, func() error {
		if attempts >= maxAttempts {
			parked = append(parked, seq)
		}
		return nil
	})
	return parked, err
}
