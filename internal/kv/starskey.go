package kv

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/starskey-io/starskey"
)

// StarskeyStore persists state in a Starskey database directory. Starskey's
// own diagnostics go to a <dir>.log file next to the directory.
type StarskeyStore struct {
	db *starskey.Starskey
}

func NewStarskeyStore(dir string) (*StarskeyStore, error) {
	db, err := starskey.Open(&starskey.Config{
		Permission:     0755,
		Directory:      dir,
		FlushThreshold: 1024 * 1024,
		MaxLevel:       3,
		SizeFactor:     10,
		BloomFilter:    false,
		SuRF:           false,
		Logging:        true,
		Compression:    false,
	})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	log.Debug("Opened state store", "path", dir)
	return &StarskeyStore{db: db}, nil
}

func (s *StarskeyStore) Get(key string) ([]byte, error) {
	value, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *StarskeyStore) Set(key string, value []byte) error {
	return s.db.Put([]byte(key), value)
}

func (s *StarskeyStore) Delete(key string) error {
	return s.db.Delete([]byte(key))
}

func (s *StarskeyStore) Close() error {
	return s.db.Close()
}
