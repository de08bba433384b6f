package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/fulldump/itempicker/itemstore"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

type Config struct {
	Items int
}

// Database owns the item store lifecycle: it is unavailable while the master
// collection is being generated and while shutting down.
type Database struct {
	config   *Config
	statusMu sync.RWMutex
	status   string
	Store    *itemstore.Store
	exit     chan struct{}
	stopOnce sync.Once
}

func NewDatabase(config *Config) *Database {
	if config == nil {
		config = &Config{}
	}

	return &Database{
		config: config,
		status: StatusOpening,
		Store:  itemstore.New(),
		exit:   make(chan struct{}),
	}
}

func (db *Database) GetStatus() string {
	db.statusMu.RLock()
	defer db.statusMu.RUnlock()
	return db.status
}

func (db *Database) setStatus(status string) {
	db.statusMu.Lock()
	db.status = status
	db.statusMu.Unlock()
}

// Load generates the master collection.
func (db *Database) Load() error {

	if db.config.Items < 0 {
		db.setStatus(StatusClosing)
		return fmt.Errorf("items must be zero or positive, got %d", db.config.Items)
	}

	fmt.Printf("Generating %d items...\n", db.config.Items) // todo: move to logger
	t0 := time.Now()
	db.Store.Seed(db.config.Items)
	fmt.Println("items", db.Store.Stats().Total, time.Since(t0)) // todo: move to logger

	if db.GetStatus() == StatusOpening {
		db.setStatus(StatusOperating)
	}

	return nil
}

// Start loads the database in the background and blocks until Stop. A failed
// load stops the database and is returned.
func (db *Database) Start() error {

	loaded := make(chan error, 1)
	go func() {
		loaded <- db.Load()
	}()

	select {
	case err := <-loaded:
		if err != nil {
			db.Stop()
			return fmt.Errorf("load: %w", err)
		}
	case <-db.exit:
		return nil
	}

	<-db.exit

	return nil
}

func (db *Database) Stop() error {

	db.setStatus(StatusClosing)

	db.stopOnce.Do(func() {
		close(db.exit)
	})

	return nil
}
