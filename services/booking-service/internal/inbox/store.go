// Package inbox remembers which Kafka messages were already applied.
package inbox

import (
	"context"

	"github.com/md-rashed-zaman/agendei/libs/db"
)

type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Processed(ctx context.Context, messageID string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM processed_messages WHERE message_id = $1`, messageID).Scan(&n)
	return n > 0, err
}

// MarkProcessed returns false when messageID had already been marked.
func (s *Store) MarkProcessed(ctx context.Context, messageID, topic string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO processed_messages (message_id, topic) VALUES ($1, $2) ON CONFLICT (message_id) DO NOTHING`,
		messageID, topic)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
