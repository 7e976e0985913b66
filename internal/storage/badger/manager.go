package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	jobs   interfaces.JobStorage
	blobs  interfaces.BlobStorage
	index  interfaces.SearchIndex
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager. The connection is passed
// in rather than opened here because the queue shares the same database and
// the app owns the connection lifecycle.
func NewManager(db *BadgerDB, logger arbor.ILogger) interfaces.StorageManager {
	manager := &Manager{
		db:     db,
		jobs:   NewJobStorage(db, logger),
		blobs:  NewBlobStorage(db, logger),
		index:  NewIndexStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// BlobStorage returns the Blob storage interface
func (m *Manager) BlobStorage() interfaces.BlobStorage {
	return m.blobs
}

// SearchIndex returns the search index interface
func (m *Manager) SearchIndex() interfaces.SearchIndex {
	return m.index
}

// DB returns the underlying badgerhold store
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
