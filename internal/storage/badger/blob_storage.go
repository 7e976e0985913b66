package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

const (
	blobKeyPrefix     = "blob:"
	blobMetaKeyPrefix = "blobmeta:"
)

// BlobStorage implements the BlobStorage interface on raw Badger keys.
// Payloads can be multi-megabyte uploads, so they bypass badgerhold's
// record encoding and land directly under "blob:{name}" with metadata
// stored separately under "blobmeta:{name}".
type BlobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBlobStorage creates a new BlobStorage instance
func NewBlobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BlobStorage {
	return &BlobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BlobStorage) Put(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("blob name is required")
	}

	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(blobKey(name), data); err != nil {
			return err
		}
		if len(metadata) > 0 {
			meta, err := json.Marshal(metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal blob metadata: %w", err)
			}
			return txn.Set(blobMetaKey(name), meta)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store blob %s: %w", name, err)
	}
	return name, nil
}

func (s *BlobStorage) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(blobKey(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, interfaces.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %s: %w", name, err)
	}
	return data, nil
}

func (s *BlobStorage) GetMetadata(ctx context.Context, name string) (map[string]string, error) {
	metadata := make(map[string]string)
	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(blobMetaKey(name))
		if err == badgerdb.ErrKeyNotFound {
			// Blob stored without metadata is fine, missing blob is not
			if _, blobErr := txn.Get(blobKey(name)); blobErr != nil {
				return blobErr
			}
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &metadata)
		})
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, interfaces.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob metadata %s: %w", name, err)
	}
	return metadata, nil
}

func (s *BlobStorage) Delete(ctx context.Context, name string) error {
	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(blobKey(name)); err != nil {
			return err
		}
		return txn.Delete(blobMetaKey(name))
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

// List returns the names of all blobs whose name starts with prefix, in
// lexicographic order. An empty prefix lists everything.
func (s *BlobStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		scanPrefix := blobKey(prefix)
		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			key := string(it.Item().Key())
			names = append(names, strings.TrimPrefix(key, blobKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	return names, nil
}

func blobKey(name string) []byte {
	return []byte(blobKeyPrefix + name)
}

func blobMetaKey(name string) []byte {
	return []byte(blobMetaKeyPrefix + name)
}
