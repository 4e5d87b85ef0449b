package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/ja7ad/taskscheduler/pkg/log"
	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
)

var bucketJobs = []byte("jobs")

// boltRecord is the on-disk shape of a Record, JSON-encoded.
type boltRecord struct {
	Spec     spec.JobSpec `json:"spec"`
	Status   Status       `json:"status"`
	SubmitMs int64        `json:"submit_ms"`
	StartMs  int64        `json:"start_ms"`
	EndMs    int64        `json:"end_ms"`
	ExitCode int          `json:"exit_code"`
}

// BoltStore is the bbolt-backed Store implementation.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore returns an unopened BoltStore; call Init to open the file.
func NewBoltStore() *BoltStore {
	return &BoltStore{}
}

func (s *BoltStore) Init(path string) error {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("store: open: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketJobs)
		return err
	}); err != nil {
		_ = db.Close()
		return fmt.Errorf("store: create bucket: %w", err)
	}
	s.db = db
	return nil
}

func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) Insert(id int, spc spec.JobSpec, submitMs int64) bool {
	if s.db == nil {
		return false
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		rec := boltRecord{Spec: spc, Status: StatusQueued, SubmitMs: submitMs}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(keyFor(id), data)
	})
	if err != nil {
		log.WithComponent("store").Warn().Err(err).Int("id", id).Msg("insert failed")
		return false
	}
	return true
}

func (s *BoltStore) Update(id int, status Status, exitCode int, startMs, endMs int64) bool {
	if s.db == nil {
		return false
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get(keyFor(id))
		var rec boltRecord
		if data != nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
		}
		rec.Status = status
		rec.ExitCode = exitCode
		if startMs > 0 {
			rec.StartMs = startMs
		}
		if endMs > 0 {
			rec.EndMs = endMs
		}
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(keyFor(id), out)
	})
	if err != nil {
		log.WithComponent("store").Warn().Err(err).Int("id", id).Msg("update failed")
		return false
	}
	return true
}

func (s *BoltStore) LoadUnfinished() ([]Record, error) {
	if s.db == nil {
		return nil, nil
	}
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Status != StatusQueued && rec.Status != StatusRunning {
				return nil
			}
			out = append(out, Record{
				ID:       idFrom(k),
				Spec:     rec.Spec,
				Status:   StatusQueued,
				SubmitMs: rec.SubmitMs,
				StartMs:  rec.StartMs,
				EndMs:    rec.EndMs,
				ExitCode: rec.ExitCode,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load unfinished: %w", err)
	}
	return out, nil
}

func keyFor(id int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func idFrom(key []byte) int {
	return int(binary.BigEndian.Uint64(key))
}
