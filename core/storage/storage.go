package storage

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes used by the node. Keeping them in one place so the
// operator tooling can scan the database by concern.
const (
	PrefixIssuer = "issuer:" // issuer:<issuerID> -> registry row
	PrefixAnchor = "anchor:" // anchor:<hash hex>  -> anchor record
	PrefixQueue  = "queue:"  // queue:<hash hex>   -> pending anchor submission
	PrefixAudit  = "audit:"  // audit:<seq>        -> audit trail entry
)

// Storage is a LevelDB-backed key-value store. Values are encrypted at
// rest with the node DEK (see encrypt.go).
type Storage struct {
	db *leveldb.DB
}

func NewStorage(path string) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Get retrieves and decrypts a value by key.
func (s *Storage) Get(key string) ([]byte, error) {
	enc, err := s.db.Get([]byte(key), nil)
	if err != nil {
		return nil, err
	}
	return Decrypt(enc)
}

// Put encrypts and stores a key-value pair.
func (s *Storage) Put(key string, value []byte) error {
	enc, err := Encrypt(value)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(key), enc, nil)
}

// Delete removes a key. Missing keys are not an error.
func (s *Storage) Delete(key string) error {
	return s.db.Delete([]byte(key), nil)
}

// Has reports whether a key exists without decrypting the value.
func (s *Storage) Has(key string) (bool, error) {
	return s.db.Has([]byte(key), nil)
}

// IsNotFound reports whether err is the backend's missing-key error.
func IsNotFound(err error) bool {
	return err == leveldb.ErrNotFound
}

// PrefixIterator iterates all keys under the given prefix.
// Caller must Release() the iterator. Values are still encrypted;
// use Decrypt on iter.Value().
func (s *Storage) PrefixIterator(prefix string) iterator.Iterator {
	return s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
}

// ListKeys returns all keys under a prefix, with the prefix stripped.
func (s *Storage) ListKeys(prefix string) ([]string, error) {
	iter := s.PrefixIterator(prefix)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		key := iter.Key()
		keys = append(keys, string(bytes.TrimPrefix(key, []byte(prefix))))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return keys, nil
}

// WriteBatch applies several encrypted puts atomically.
func (s *Storage) WriteBatch(entries map[string][]byte) error {
	batch := new(leveldb.Batch)
	for key, value := range entries {
		enc, err := Encrypt(value)
		if err != nil {
			return err
		}
		batch.Put([]byte(key), enc)
	}
	return s.db.Write(batch, nil)
}

func (s *Storage) Close() error {
	return s.db.Close()
}
