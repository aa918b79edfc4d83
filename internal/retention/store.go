package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// defaultValueLimit is the number of values returned by LastValues when the
// caller does not specify a limit.
const defaultValueLimit = 10

// timestampFormat is the storage format for ingestion timestamps. The
// fractional second is fixed at nine digits so the TEXT column sorts
// lexicographically in chronological order; RFC3339Nano trims trailing
// zeros and would mis-rank same-second values.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Logger is the logging interface consumed by the store.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Mirror receives a copy of every accepted value, after the SQLite commit.
// Satisfied by the InfluxDB client; writes must be non-blocking.
type Mirror interface {
	WriteTopicValue(topic, payload string, timestamp time.Time)
}

// Store persists topic metadata and bounded per-topic value history.
//
// All methods are synchronous and safe for concurrent use from multiple
// goroutines: a single store-wide mutex serialises every write against the
// one long-lived SQLite connection. The insert-then-trim pair in InsertValue
// runs inside one transaction under that mutex, so concurrent inserts can
// never observe a stale row count and under- or over-trim.
//
// Throughput is bounded by single-writer serialisation, which is acceptable
// at the ingestion rates this system targets.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex

	// mirror, when set, receives accepted values after commit.
	mirror   Mirror
	mirrorMu sync.RWMutex
}

// NewStore creates a retention store on top of an open database connection.
//
// The store never opens its own connection; every operation goes through the
// single connection owned by the caller.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetLogger sets a logger for warnings on dropped values.
// If not set, unknown-topic drops are silent.
func (s *Store) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (s *Store) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// SetMirror enables time-series mirroring of accepted values.
// Values dropped for unregistered topics are never mirrored.
func (s *Store) SetMirror(mirror Mirror) {
	s.mirrorMu.Lock()
	s.mirror = mirror
	s.mirrorMu.Unlock()
}

// getMirror returns the current mirror (may be nil).
func (s *Store) getMirror() Mirror {
	s.mirrorMu.RLock()
	defer s.mirrorMu.RUnlock()
	return s.mirror
}

// UpsertBroker creates or updates a broker record keyed on its unique name.
//
// Returns:
//   - int64: The broker row ID
//   - error: If the statement fails
func (s *Store) UpsertBroker(ctx context.Context, broker Broker) (int64, error) {
	if broker.Name == "" {
		return 0, fmt.Errorf("broker name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brokers (name, host, port, username, password, tls_enabled, cert_file,
			max_reconnect_attempts, reconnect_interval_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			password = excluded.password,
			tls_enabled = excluded.tls_enabled,
			cert_file = excluded.cert_file,
			max_reconnect_attempts = excluded.max_reconnect_attempts,
			reconnect_interval_ms = excluded.reconnect_interval_ms`,
		broker.Name, broker.Host, broker.Port, broker.Username, broker.Password,
		broker.TLSEnabled, broker.CertFile, broker.MaxReconnectAttempts, broker.ReconnectIntervalMS,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting broker: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT id FROM brokers WHERE name = ?", broker.Name,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("querying broker id: %w", err)
	}

	return id, nil
}

// UpsertTopic creates or updates topic metadata keyed on the topic string.
// Idempotent; last write wins on a conflicting topic name.
func (s *Store) UpsertTopic(ctx context.Context, topic Topic) error {
	if topic.Topic == "" {
		return ErrInvalidTopic
	}
	if topic.MaxValues < 1 {
		return ErrInvalidMaxValues
	}

	var parent sql.NullString
	if topic.ParentTopic != "" {
		parent = sql.NullString{String: topic.ParentTopic, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (topic, parent_topic, max_values, query_frequency_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(topic) DO UPDATE SET
			parent_topic = excluded.parent_topic,
			max_values = excluded.max_values,
			query_frequency_ms = excluded.query_frequency_ms`,
		topic.Topic, parent, topic.MaxValues, topic.QueryFrequencyMS,
	)
	if err != nil {
		return fmt.Errorf("upserting topic: %w", err)
	}

	return nil
}

// UpsertSubscription records that a broker observes a topic.
// The (broker, topic) pair is unique; re-registering reactivates it.
func (s *Store) UpsertSubscription(ctx context.Context, brokerID int64, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	topicID, err := s.topicID(ctx, topic)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (broker_id, topic_id, is_active)
		VALUES (?, ?, 1)
		ON CONFLICT(broker_id, topic_id) DO UPDATE SET is_active = 1`,
		brokerID, topicID,
	)
	if err != nil {
		return fmt.Errorf("upserting subscription: %w", err)
	}

	return nil
}

// topicID resolves a topic string to its row ID. Caller holds the store mutex.
func (s *Store) topicID(ctx context.Context, topic string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM topics WHERE topic = ?", topic).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTopicNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying topic id: %w", err)
	}
	return id, nil
}

// DeleteTopic removes a topic and, via foreign key cascades, its child
// topics, subscriptions, and retained values.
func (s *Store) DeleteTopic(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM topics WHERE topic = ?", topic)
	if err != nil {
		return fmt.Errorf("deleting topic: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTopicNotFound
	}

	return nil
}

// InsertValue persists a payload for a registered topic and trims the
// topic's history to its retention cap.
//
// Values for unregistered topics are dropped with a logged warning and a nil
// error: the wildcard subscription observes all broker traffic, and only
// registered topics may grow history. The insert and the trim execute in a
// single transaction under the store mutex.
func (s *Store) InsertValue(ctx context.Context, topic, payload string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting insert transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var topicID int64
	var maxValues int
	err = tx.QueryRowContext(ctx,
		"SELECT id, max_values FROM topics WHERE topic = ?", topic,
	).Scan(&topicID, &maxValues)
	if errors.Is(err, sql.ErrNoRows) {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("dropping value for unregistered topic", "topic", topic)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("querying topic: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO topic_values (topic_id, value, timestamp) VALUES (?, ?, ?)",
		topicID, payload, now.Format(timestampFormat),
	); err != nil {
		return fmt.Errorf("inserting value: %w", err)
	}

	// Keep only the max_values most recent rows. Row ID breaks timestamp
	// ties so inserts within the same instant still evict oldest-first.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM topic_values
		WHERE topic_id = ?
		  AND id NOT IN (
			SELECT id FROM topic_values
			WHERE topic_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		  )`,
		topicID, topicID, maxValues,
	); err != nil {
		return fmt.Errorf("trimming values: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}

	if mirror := s.getMirror(); mirror != nil {
		mirror.WriteTopicValue(topic, payload, now)
	}

	return nil
}

// LastValue returns the most recent value for a topic.
//
// Returns (nil, nil) when the topic is unknown or has no values.
func (s *Store) LastValue(ctx context.Context, topic string) (*Value, error) {
	values, err := s.LastValues(ctx, topic, 1)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return &values[0], nil
}

// LastValues returns the most recent values for a topic, newest first.
//
// Parameters:
//   - topic: The registered topic string
//   - limit: Maximum values to return; defaults to 10 when not positive
//
// Returns:
//   - []Value: Retained values ordered newest first (empty when none)
//   - error: If the query fails
func (s *Store) LastValues(ctx context.Context, topic string, limit int) ([]Value, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if limit <= 0 {
		limit = defaultValueLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.value, v.timestamp
		FROM topic_values v
		JOIN topics t ON t.id = v.topic_id
		WHERE t.topic = ?
		ORDER BY v.timestamp DESC, v.id DESC
		LIMIT ?`,
		topic, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying values: %w", err)
	}
	defer rows.Close()

	values := make([]Value, 0, limit)
	for rows.Next() {
		var v Value
		var raw string
		if err := rows.Scan(&v.Payload, &raw); err != nil {
			return nil, fmt.Errorf("scanning value: %w", err)
		}
		v.Timestamp, err = time.Parse(timestampFormat, raw)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating values: %w", err)
	}

	return values, nil
}

// GetTopic returns the metadata for a registered topic.
// Returns ErrTopicNotFound if the topic does not exist.
func (s *Store) GetTopic(ctx context.Context, topic string) (*Topic, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}

	var t Topic
	var parent sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, topic, parent_topic, max_values, query_frequency_ms FROM topics WHERE topic = ?",
		topic,
	).Scan(&t.ID, &t.Topic, &parent, &t.MaxValues, &t.QueryFrequencyMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying topic: %w", err)
	}
	t.ParentTopic = parent.String

	return &t, nil
}

// ListTopics returns all registered topics ordered by topic string.
func (s *Store) ListTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, topic, parent_topic, max_values, query_frequency_ms FROM topics ORDER BY topic",
	)
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		var parent sql.NullString
		if err := rows.Scan(&t.ID, &t.Topic, &parent, &t.MaxValues, &t.QueryFrequencyMS); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		t.ParentTopic = parent.String
		topics = append(topics, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topics: %w", err)
	}

	return topics, nil
}

// ValueCount returns the number of retained values for a topic.
// Used by tests and monitoring; returns 0 for unknown topics.
func (s *Store) ValueCount(ctx context.Context, topic string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM topic_values v
		JOIN topics t ON t.id = v.topic_id
		WHERE t.topic = ?`,
		topic,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting values: %w", err)
	}
	return count, nil
}
