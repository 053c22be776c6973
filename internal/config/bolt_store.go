package config

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/brianhealey/slidepi/internal/models"
)

const (
	boltFileName   = "slideshow.db"
	settingsBucket = "settings"
	imagesBucket   = "images"
	settingsKey    = "current"
)

// BoltStore keeps the snapshot in a bbolt database: the settings record in
// one bucket and the image collection in another, keyed by position.
// Writes are synchronous.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (or creates) slideshow.db in configDir.
func NewBoltStore(configDir string) (*BoltStore, error) {
	path := filepath.Join(configDir, boltFileName)
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{settingsBucket, imagesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("config: creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string { return s.path }

// Load reads settings and images. An empty database yields DefaultSnapshot.
func (s *BoltStore) Load() (*models.Snapshot, error) {
	snap := models.DefaultSnapshot()
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket([]byte(settingsBucket)).Get([]byte(settingsKey)); data != nil {
			if err := json.Unmarshal(data, &snap.Settings); err != nil {
				return fmt.Errorf("config: decoding settings: %w", err)
			}
		}
		return tx.Bucket([]byte(imagesBucket)).ForEach(func(_, v []byte) error {
			var img models.Image
			if err := json.Unmarshal(v, &img); err != nil {
				return fmt.Errorf("config: decoding image: %w", err)
			}
			snap.Images = append(snap.Images, img)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	migrateSnapshot(&snap)
	return &snap, nil
}

// Save replaces the stored snapshot in one transaction.
func (s *BoltStore) Save(snap *models.Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(snap.Settings)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(settingsBucket)).Put([]byte(settingsKey), data); err != nil {
			return fmt.Errorf("config: storing settings: %w", err)
		}

		if err := tx.DeleteBucket([]byte(imagesBucket)); err != nil {
			return fmt.Errorf("config: clearing images: %w", err)
		}
		b, err := tx.CreateBucket([]byte(imagesBucket))
		if err != nil {
			return fmt.Errorf("config: creating images bucket: %w", err)
		}
		for i, img := range snap.Images {
			v, err := json.Marshal(img)
			if err != nil {
				return err
			}
			if err := b.Put(positionKey(i), v); err != nil {
				return fmt.Errorf("config: storing image %d: %w", img.ID, err)
			}
		}
		return nil
	})
}

// Flush is a no-op: every Save is committed before it returns.
func (s *BoltStore) Flush() error { return nil }

// SetErrorHandler is a no-op: failures are returned from Save.
func (s *BoltStore) SetErrorHandler(func(error)) {}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// positionKey encodes i big-endian so ForEach walks images in order.
func positionKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}

var _ Store = (*BoltStore)(nil)
