package store

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB implements Store on top of a goleveldb database.
type LevelDB struct {
	db   *leveldb.DB
	path string
}

// OpenLevelDB opens (or creates) a LevelDB database at path, attempting a
// recovery if the manifest is corrupted.
func OpenLevelDB(path string, cacheMB, handles int) (*LevelDB, error) {
	options := &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cacheMB / 2 * opt.MiB,
		WriteBuffer:            cacheMB / 4 * opt.MiB,
	}
	db, err := leveldb.OpenFile(path, options)
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		log.Warn().Str("path", path).Msg("LevelDB corrupted, attempting recovery")
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("cache_mb", cacheMB).Int("handles", handles).Msg("LevelDB store opened")
	return &LevelDB{db: db, path: path}, nil
}

// NewLevelDB wraps an already opened database. Tests use it with
// in-memory goleveldb storage.
func NewLevelDB(db *leveldb.DB) *LevelDB {
	return &LevelDB{db: db}
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, notFound(key)
	}
	return v, err
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

func (l *LevelDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		if !fn(k, v) {
			break
		}
	}
	return it.Error()
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, b: new(leveldb.Batch)}
}

func (l *LevelDB) Ping(_ context.Context) error {
	_, err := l.db.GetProperty("leveldb.stats")
	return err
}

func (l *LevelDB) Close() error {
	log.Info().Str("path", l.path).Msg("LevelDB store closed")
	return l.db.Close()
}

type levelBatch struct {
	db *leveldb.DB
	b  *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) { b.b.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.b.Delete(key) }
func (b *levelBatch) Len() int              { return b.b.Len() }
func (b *levelBatch) Write() error          { return b.db.Write(b.b, nil) }
