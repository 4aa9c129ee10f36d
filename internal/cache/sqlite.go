package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DefaultTable holds experiment results. Checkpoint scopes use their own
// tables so they can coexist in the same file and be dropped independently.
const DefaultTable = "results"

// entry is one cache row. Timestamp records creation time as unix seconds;
// rows are only ever upserted, never implicitly evicted.
type entry struct {
	Key       []byte  `gorm:"column:key;primaryKey"`
	Timestamp float64 `gorm:"column:timestamp"`
	Value     []byte  `gorm:"column:value"`
}

// SQLiteProvider is a Provider backed by one table of a single-file SQLite
// database. Concurrent access from multiple workers relies on SQLite's own
// file locking; there is no higher-level lock, so racing writes to the same
// key resolve last-writer-wins. A provider handle must not be shared across a
// process boundary; each process opens its own.
type SQLiteProvider struct {
	db    *gorm.DB
	table string
}

// Open opens (creating if necessary) the cache file at path and binds the
// provider to the named table. An empty table name selects DefaultTable.
func Open(path, table string) (*SQLiteProvider, error) {
	if table == "" {
		table = DefaultTable
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	if err := db.Table(table).AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrate cache table %s: %w", table, err)
	}
	return &SQLiteProvider{db: db, table: table}, nil
}

func (p *SQLiteProvider) Get(key []byte) ([]byte, error) {
	var e entry
	err := p.db.Table(p.table).Where("key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return e.Value, nil
}

func (p *SQLiteProvider) Set(key, value []byte) error {
	e := entry{
		Key:       key,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Value:     value,
	}
	err := p.db.Table(p.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp", "value"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (p *SQLiteProvider) Contains(key []byte) bool {
	_, err := p.Get(key)
	return err == nil
}

// Count returns the number of entries in this provider's table.
func (p *SQLiteProvider) Count() (int64, error) {
	var n int64
	if err := p.db.Table(p.table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Drop removes this provider's table from the cache file, reclaiming the
// space used by a checkpoint scope. The provider is unusable afterwards.
func (p *SQLiteProvider) Drop() error {
	if err := p.db.Migrator().DropTable(p.table); err != nil {
		return fmt.Errorf("drop cache table %s: %w", p.table, err)
	}
	return nil
}

// HasTable reports whether this provider's table still exists in the file.
func (p *SQLiteProvider) HasTable() bool {
	return p.db.Migrator().HasTable(p.table)
}

// Close releases the underlying database handle.
func (p *SQLiteProvider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
