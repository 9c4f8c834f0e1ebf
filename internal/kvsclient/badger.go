package kvsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/logger"
	"github.com/rise-lab/causalcache/internal/vclock"
)

const kvsKeyPrefix = "kvs:"

// wireValue is the JSON-serialized form of a ccv.Value stored in Badger.
// struct{}-valued sets round-trip through JSON as empty objects.
type wireValue struct {
	VC      vclock.Clock             `json:"vc"`
	Deps    map[string]vclock.Clock  `json:"deps"`
	Payload map[string]struct{}      `json:"payload"`
}

func toWire(v ccv.Value) wireValue {
	return wireValue{VC: v.VC, Deps: v.Deps, Payload: v.Payload}
}

func fromWire(w wireValue) ccv.Value {
	return ccv.Value{VC: w.VC, Deps: w.Deps, Payload: ccv.Payload(w.Payload)}
}

// BadgerClient is a KvsAsyncClient backed by BadgerDB, standing in for the
// real backing KVS during local development, standalone runs, and
// integration tests. Storage tuning is adapted from the teacher's
// persistence engine (WAL/sync-write options, background value-log GC);
// the get/put surface is reshaped around request-id-correlated
// asynchronous responses instead of a synchronous Engine interface,
// because spec.md requires the KVS collaborator to behave asynchronously.
type BadgerClient struct {
	db      *badger.DB
	log     logger.Logger
	replies chan Response
	closeCh chan struct{}
}

// NewBadgerClient opens (or creates) a BadgerDB store at dataDir.
func NewBadgerClient(dataDir string, syncWrites bool, log logger.Logger) (*BadgerClient, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create kvs data dir: %w", err)
	}

	opts := badger.DefaultOptions(dataDir)
	opts.SyncWrites = syncWrites
	opts.Logger = nil
	opts.ValueLogFileSize = 64 << 20
	opts.MemTableSize = 64 << 20
	opts.NumMemtables = 5
	opts.NumLevelZeroTables = 5
	opts.NumLevelZeroTablesStall = 10
	opts.Compression = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger kvs: %w", err)
	}

	c := &BadgerClient{
		db:      db,
		log:     log,
		replies: make(chan Response, 1024),
		closeCh: make(chan struct{}),
	}
	go c.runGarbageCollection()

	log.Info("badger-backed kvs client initialized",
		logger.String("data_dir", dataDir),
		logger.String("sync_writes", fmt.Sprintf("%t", syncWrites)))

	return c, nil
}

func (c *BadgerClient) runGarbageCollection() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			if err := c.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				c.log.Warn("kvs value-log gc failed", logger.Error(err))
			}
		}
	}
}

func (c *BadgerClient) GetAsync(key string) {
	go func() {
		var value ccv.Value
		var exists bool

		err := c.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(kvsKeyPrefix + key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(raw []byte) error {
				var w wireValue
				if err := json.Unmarshal(raw, &w); err != nil {
					return err
				}
				value = fromWire(w)
				exists = true
				return nil
			})
		})

		c.replies <- Response{Op: OpGet, Key: key, Value: value, Exists: exists, Err: err}
	}()
}

func (c *BadgerClient) PutAsync(key string, value ccv.Value, requestID string) {
	go func() {
		err := c.db.Update(func(txn *badger.Txn) error {
			existing := ccv.Empty()
			item, err := txn.Get([]byte(kvsKeyPrefix + key))
			if err == nil {
				if verr := item.Value(func(raw []byte) error {
					var w wireValue
					if jerr := json.Unmarshal(raw, &w); jerr != nil {
						return jerr
					}
					existing = fromWire(w)
					return nil
				}); verr != nil {
					return verr
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			ccv.MergeInto(&existing, value)
			raw, merr := json.Marshal(toWire(existing))
			if merr != nil {
				return merr
			}
			return txn.Set([]byte(kvsKeyPrefix+key), raw)
		})

		c.replies <- Response{Op: OpPut, Key: key, RequestID: requestID, Err: err}
	}()
}

func (c *BadgerClient) Responses() <-chan Response {
	return c.replies
}

func (c *BadgerClient) Close() error {
	close(c.closeCh)
	return c.db.Close()
}
