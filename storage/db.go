package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the requested key has no value. All
// Database implementations normalise their backend-specific not-found errors
// to this sentinel so callers can use errors.Is uniformly.
var ErrNotFound = errors.New("storage: key not found")

// Batch accumulates writes for a single atomic commit. The ledger package
// opens one batch per top-level engine operation and writes it exactly once,
// satisfying the "one atomic commit against the ledger" requirement for every
// mutating operation.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
}

// Database is a generic interface for a key-value store. This allows the
// ledger to use any database backend (in-memory or persistent) and to commit
// a batch of writes atomically.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	NewBatch() Batch
	WriteBatch(Batch) error
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

type memBatchOp struct {
	key     []byte
	value   []byte
	deleted bool
}

type memBatch struct {
	ops []memBatchOp
}

func (b *memBatch) Put(key, value []byte) {
	b.ops = append(b.ops, memBatchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memBatchOp{key: append([]byte(nil), key...), deleted: true})
}

// NewBatch returns a batch that stages writes for MemDB.
func (db *MemDB) NewBatch() Batch { return &memBatch{} }

// WriteBatch applies every staged operation atomically with respect to other
// callers of the database (guarded by the same mutex as Put/Get).
func (db *MemDB) WriteBatch(b Batch) error {
	mb, ok := b.(*memBatch)
	if !ok {
		return errors.New("storage: batch not created by MemDB")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, op := range mb.ops {
		if op.deleted {
			delete(db.data, string(op.key))
			continue
		}
		db.data[string(op.key)] = op.value
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB (for mainnet) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// NewBatch returns a goleveldb batch for staging atomic writes.
func (ldb *LevelDB) NewBatch() Batch { return &leveldbBatch{batch: new(leveldb.Batch)} }

// WriteBatch commits the batch to LevelDB in a single atomic write.
func (ldb *LevelDB) WriteBatch(b Batch) error {
	lb, ok := b.(*leveldbBatch)
	if !ok {
		return errors.New("storage: batch not created by LevelDB")
	}
	return ldb.db.Write(lb.batch, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type leveldbBatch struct {
	batch *leveldb.Batch
}

func (b *leveldbBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *leveldbBatch) Delete(key []byte)      { b.batch.Delete(key) }
