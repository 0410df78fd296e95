package localfallback

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/trezcool/walimu/core/autosave"
)

var bucketName = []byte("autosave_drafts")

// PersistedDraft is the value stored for an unsaved draft.
type PersistedDraft struct {
	Data      autosave.Snapshot `json:"data"`
	Timestamp time.Time         `json:"timestamp"` // UTC
}

// Store keeps unsaved draft snapshots in a local bbolt file so that an outage
// of the remote database never costs an applicant their work.
type Store struct {
	db      *bolt.DB
	nowFunc func() time.Time // mockable
}

var _ autosave.FallbackStore = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening fallback store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating fallback bucket")
	}
	return &Store{db: db, nowFunc: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(userID, applicationID string) []byte {
	return []byte(fmt.Sprintf("autosave_%s_%s", userID, applicationID))
}

func (s *Store) Write(userID, applicationID string, snap autosave.Snapshot) error {
	val, err := json.Marshal(PersistedDraft{Data: snap, Timestamp: s.nowFunc().UTC()})
	if err != nil {
		return errors.Wrap(err, "encoding fallback draft")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key(userID, applicationID), val)
	})
	return errors.Wrap(err, "writing fallback draft")
}

// Read returns the persisted draft, or ok=false when none exists.
func (s *Store) Read(userID, applicationID string) (PersistedDraft, bool, error) {
	var draft PersistedDraft
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketName).Get(key(userID, applicationID))
		if val == nil {
			return nil
		}
		found = true
		return json.Unmarshal(val, &draft)
	})
	if err != nil {
		return PersistedDraft{}, false, errors.Wrap(err, "reading fallback draft")
	}
	return draft, found, nil
}

func (s *Store) Clear(userID, applicationID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key(userID, applicationID))
	})
	return errors.Wrap(err, "clearing fallback draft")
}
