// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 10:02:35 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// queueRecord is the persisted form of an envelope plus its delivery state
type queueRecord struct {
	Envelope     models.Envelope `json:"envelope"`
	VisibleAt    time.Time       `json:"visible_at"`
	ReceiveCount int             `json:"receive_count"`
}

// Manager implements a persistent multi-channel queue on raw Badger
// transactions. Message data lives under "queue:{name}:msg:{id}"; a
// visibility-ordered index under "queue:{name}:index:{nanos %020d}:{id}"
// keeps Receive scans cheap. Re-delivery works by re-indexing a received
// message at now+visibilityTimeout; acknowledging deletes both keys.
type Manager struct {
	db                *badger.DB
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewManager creates a queue manager over an already-open Badger database.
// The database is shared with the job and blob stores, so Close here never
// closes it.
func NewManager(db *badger.DB, config *common.QueueConfig, logger arbor.ILogger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}

	visibilityTimeout := config.VisibilityTimeout
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	maxReceive := config.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

// Enqueue appends an envelope to the named queue, immediately visible
func (m *Manager) Enqueue(ctx context.Context, queue interfaces.QueueName, env *models.Envelope) error {
	if env == nil {
		return errors.New("envelope is required")
	}
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}

	record := queueRecord{
		Envelope:  *env,
		VisibleAt: time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal queue record: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(queue, env.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(queue, record.VisibleAt, env.ID), []byte{})
	})
}

// Receive pulls the oldest visible envelope from the named queue. The
// returned delete function acknowledges the message; an unacknowledged
// message becomes visible again once its visibility timeout lapses.
// Messages received more than maxReceive times are dropped as poison.
func (m *Manager) Receive(ctx context.Context, queue interfaces.QueueName) (*models.Envelope, interfaces.DeleteFunc, error) {
	var record queueRecord
	var msgID string
	var oldIndexKey []byte

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := indexPrefix(queue)
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			ts, id, err := parseIndexKey(queue, key)
			if err != nil {
				continue
			}

			// Index keys sort by timestamp, so the first future entry
			// means nothing further is ready either.
			if ts.After(now) {
				break
			}

			msgItem, err := txn.Get(msgKey(queue, id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := msgItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}

			if record.ReceiveCount >= m.maxReceive {
				m.logger.Warn().
					Str("queue", string(queue)).
					Str("message_id", id).
					Str("type", string(record.Envelope.Type)).
					Int("receive_count", record.ReceiveCount).
					Msg("Dropping poison message after max receives")
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(msgKey(queue, id)); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return models.ErrNoMessage
		}

		// Claim: bump the receive count and push visibility out
		record.ReceiveCount++
		record.VisibleAt = time.Now().Add(m.visibilityTimeout)

		newData, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey(queue, msgID), newData); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(indexKey(queue, record.VisibleAt, msgID), []byte{})
	})

	if err != nil {
		return nil, nil, err
	}

	deleteFn := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(msgKey(queue, msgID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // Already acknowledged
				}
				return err
			}

			var current queueRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			if err := txn.Delete(indexKey(queue, current.VisibleAt, msgID)); err != nil {
				if err != badger.ErrKeyNotFound {
					return err
				}
			}
			return txn.Delete(msgKey(queue, msgID))
		})
	}

	env := record.Envelope
	return &env, deleteFn, nil
}

// Length returns the number of messages in the named queue, in-flight
// messages included
func (m *Manager) Length(ctx context.Context, queue interfaces.QueueName) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := msgPrefix(queue)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue %s: %w", queue, err)
	}
	return count, nil
}

// Clear removes every message and index entry from the named queue
func (m *Manager) Clear(ctx context.Context, queue interfaces.QueueName) error {
	return m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:", queue))
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close is a no-op; the shared database is owned by the app
func (m *Manager) Close() error {
	return nil
}

// Key helpers

func msgKey(queue interfaces.QueueName, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", queue, id))
}

func msgPrefix(queue interfaces.QueueName) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:", queue))
}

func indexKey(queue interfaces.QueueName, visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so lexicographic order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", queue, visibleAt.UnixNano(), id))
}

func indexPrefix(queue interfaces.QueueName) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", queue))
}

func parseIndexKey(queue interfaces.QueueName, key []byte) (time.Time, string, error) {
	prefix := indexPrefix(queue)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	// Suffix is "{20-digit-nanos}:{id}"
	suffix := string(key[len(prefix):])
	if len(suffix) < 22 {
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
