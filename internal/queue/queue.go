// Package queue implements the persistent, priority-ordered job bus
// behind the Scheduler/Worker Pool and the Alert Pipeline, grounded on
// bravo1goingdark-mailgrid's database/boltdb.go: one go.etcd.io/bbolt
// file, a bucket per topic, JSON-encoded job records, and the same
// AcquireLock/ReleaseLock advisory-lock pattern reused here for the
// Scheduler's and Retention Sweeper's single-instance locks.
package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	lockBucket     = "locks"
	lockExpiryTime = 5 * time.Minute
	deadSuffix     = "_dead"
	dedupSuffix    = "_dedup"
)

// Job is one unit of work moving through a topic.
type Job struct {
	Key         string          `json:"key"`
	DedupKey    string          `json:"dedup_key"`
	Topic       string          `json:"topic"`
	Priority    int             `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	NotBefore   time.Time       `json:"not_before"`
}

// Queue wraps a bbolt.DB providing per-topic priority queues with
// dedup, NACK/retry backoff, and dead-letter buckets.
type Queue struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt-backed queue at path,
// pre-creating the bucket set for the given topics.
func Open(path string, topics ...string) (*Queue, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening queue db at %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(lockBucket)); err != nil {
			return err
		}
		for _, topic := range topics {
			for _, name := range []string{topic, topic + deadSuffix, topic + dedupSuffix} {
				if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
					return fmt.Errorf("creating bucket %s: %w", name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Queue{db: db}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// compositeKey orders by priority then insertion time so a bucket
// cursor's natural key order is already priority- and age-ordered.
func compositeKey(priority int, enqueuedAt time.Time, dedupKey string) string {
	return fmt.Sprintf("%03d:%020d:%s", priority, enqueuedAt.UnixNano(), dedupKey)
}

// Enqueue adds a job to topic unless a job with the same dedup key is
// already pending, in which case Enqueue is a silent no-op (the
// Scheduler's dedup-key contract: a tick that finds a job still queued
// for a target must not double-enqueue it).
func (q *Queue) Enqueue(topic, dedupKey string, priority int, payload json.RawMessage, maxAttempts int) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		dedup := tx.Bucket([]byte(topic + dedupSuffix))
		if dedup == nil {
			return fmt.Errorf("unknown topic %q", topic)
		}
		if dedup.Get([]byte(dedupKey)) != nil {
			return nil
		}

		now := time.Now()
		key := compositeKey(priority, now, dedupKey)
		job := Job{
			Key:         key,
			DedupKey:    dedupKey,
			Topic:       topic,
			Priority:    priority,
			Payload:     payload,
			EnqueuedAt:  now,
			MaxAttempts: maxAttempts,
		}
		encoded, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		bucket := tx.Bucket([]byte(topic))
		if bucket == nil {
			return fmt.Errorf("unknown topic %q", topic)
		}
		if err := bucket.Put([]byte(key), encoded); err != nil {
			return err
		}
		return dedup.Put([]byte(dedupKey), []byte(key))
	})
}

// Dequeue pops the oldest, highest-priority ready job from topic (one
// whose NotBefore has elapsed), or returns nil if none are ready. The
// job is removed from the pending bucket as part of this call; callers
// are responsible for calling Ack or Nack to finalize or retry it.
func (q *Queue) Dequeue(topic string) (*Job, error) {
	var result *Job
	err := q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(topic))
		if bucket == nil {
			return fmt.Errorf("unknown topic %q", topic)
		}
		dedup := tx.Bucket([]byte(topic + dedupSuffix))

		cursor := bucket.Cursor()
		now := time.Now()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				// Corrupt record: drop it rather than wedge the queue.
				_ = bucket.Delete(k)
				continue
			}
			if !job.NotBefore.IsZero() && job.NotBefore.After(now) {
				continue
			}
			if err := bucket.Delete(k); err != nil {
				return err
			}
			if dedup != nil {
				_ = dedup.Delete([]byte(job.DedupKey))
			}
			result = &job
			return nil
		}
		return nil
	})
	return result, err
}

// Ack finalizes successful processing of a job. It is a no-op beyond
// what Dequeue already did (the job was removed from the pending
// bucket on pop); Ack exists as an explicit step so callers don't have
// to reason about when the queue considers a job "done".
func (q *Queue) Ack(job *Job) error {
	return nil
}

// Nack requeues job after backoff, incrementing its attempt count. Once
// Attempts reaches MaxAttempts the job is moved to the topic's
// dead-letter bucket instead of being requeued.
func (q *Queue) Nack(job *Job, backoff time.Duration) error {
	job.Attempts++
	if job.MaxAttempts > 0 && job.Attempts >= job.MaxAttempts {
		return q.deadLetter(job)
	}

	job.NotBefore = time.Now().Add(backoff)
	job.EnqueuedAt = time.Now()
	job.Key = compositeKey(job.Priority, job.EnqueuedAt, job.DedupKey)

	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(job.Topic))
		if bucket == nil {
			return fmt.Errorf("unknown topic %q", job.Topic)
		}
		if err := bucket.Put([]byte(job.Key), encoded); err != nil {
			return err
		}
		if dedup := tx.Bucket([]byte(job.Topic + dedupSuffix)); dedup != nil {
			if err := dedup.Put([]byte(job.DedupKey), []byte(job.Key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *Queue) deadLetter(job *Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal dead-letter job: %w", err)
	}
	return q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(job.Topic + deadSuffix))
		if bucket == nil {
			return fmt.Errorf("unknown dead-letter bucket for topic %q", job.Topic)
		}
		return bucket.Put([]byte(job.Key), encoded)
	})
}

// Depth reports the number of pending jobs in topic.
func (q *Queue) Depth(topic string) (int, error) {
	n := 0
	err := q.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(topic))
		if bucket == nil {
			return fmt.Errorf("unknown topic %q", topic)
		}
		n = bucket.Stats().KeyN
		return nil
	})
	return n, err
}

// SweepDeadLetters removes dead-lettered jobs older than ttl, returning
// the count removed. Nothing in this repository calls it: the Retention
// Sweeper does not, so dead-lettered jobs stay in the dead-letter bucket
// until a caller runs it.
func (q *Queue) SweepDeadLetters(topic string, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	removed := 0
	err := q.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(topic + deadSuffix))
		if bucket == nil {
			return fmt.Errorf("unknown dead-letter bucket for topic %q", topic)
		}
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				_ = bucket.Delete(k)
				removed++
				continue
			}
			if job.EnqueuedAt.Before(cutoff) {
				if err := bucket.Delete(k); err == nil {
					removed++
				}
			}
		}
		return nil
	})
	return removed, err
}

// parseLockInfo and formatLockInfo are ported near-verbatim from the
// teacher's boltdb.go lock encoding (instanceID:unixNano).
func parseLockInfo(lockData []byte) (instanceID string, lockedAt time.Time, err error) {
	parts := strings.Split(string(lockData), ":")
	if len(parts) != 2 {
		return "", time.Time{}, fmt.Errorf("malformed lock info")
	}
	instanceID = parts[0]
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid lock timestamp: %w", err)
	}
	return instanceID, time.Unix(0, nanos), nil
}

func formatLockInfo(instanceID string) string {
	return fmt.Sprintf("%s:%d", instanceID, time.Now().UnixNano())
}

// AcquireLock attempts to acquire the named advisory lock for
// instanceID, used by the Scheduler and Retention Sweeper to enforce
// their single-instance-per-tick invariant across process restarts.
func (q *Queue) AcquireLock(name, instanceID string) (bool, error) {
	var locked bool
	err := q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(lockBucket))
		key := []byte(name)
		current := b.Get(key)

		if current == nil {
			locked = true
			return b.Put(key, []byte(formatLockInfo(instanceID)))
		}

		heldBy, lockedAt, err := parseLockInfo(current)
		if err != nil {
			return fmt.Errorf("parsing existing lock %q: %w", name, err)
		}

		if heldBy == instanceID || time.Since(lockedAt) > lockExpiryTime {
			locked = true
			return b.Put(key, []byte(formatLockInfo(instanceID)))
		}

		locked = false
		return nil
	})
	if err != nil {
		return false, err
	}
	return locked, nil
}

// ReleaseLock releases the named lock iff it is held by instanceID.
func (q *Queue) ReleaseLock(name, instanceID string) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(lockBucket))
		key := []byte(name)
		current := b.Get(key)
		if current == nil {
			return nil
		}
		heldBy, _, err := parseLockInfo(current)
		if err != nil {
			return b.Delete(key)
		}
		if heldBy == instanceID {
			return b.Delete(key)
		}
		return nil
	})
}
