package market

import (
	"encoding/json"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const checkpointPrefix = "market:checkpoint:"

// Checkpoint remembers how far a collection walk got, so a restart resumes
// instead of refetching from the first page.
type Checkpoint struct {
	Cursor    string `json:"cursor"`
	Page      int    `json:"page"`
	UpdatedAt int64  `json:"updated_at"`
}

type CheckpointDb interface {
	Get(collection string) (Checkpoint, bool)
	Set(collection string, checkpoint Checkpoint) error
	Delete(collection string) error
}

func NewCheckpointDb(db *badger.DB) CheckpointDb {
	return &CheckpointDbImpl{db: db}
}

type CheckpointDbImpl struct {
	mu sync.RWMutex
	db *badger.DB
}

func checkpointKey(collection string) []byte {
	return []byte(checkpointPrefix + collection)
}

func (c *CheckpointDbImpl) Get(collection string) (Checkpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var checkpoint Checkpoint
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(collection))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &checkpoint)
	})
	if err != nil {
		return Checkpoint{}, false
	}
	return checkpoint, true
}

func (c *CheckpointDbImpl) Set(collection string, checkpoint Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(txn *badger.Txn) error {
		val, err := json.Marshal(checkpoint)
		if err != nil {
			return err
		}
		return txn.Set(checkpointKey(collection), val)
	})
}

func (c *CheckpointDbImpl) Delete(collection string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(checkpointKey(collection))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}
