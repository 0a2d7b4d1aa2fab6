package trace

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"llsched/internal/sched"
)

// EventRecord is one persisted scheduler event.
type EventRecord struct {
	ID         uint      `gorm:"primarykey"`
	Run        string    `gorm:"index;size:40"`
	RAT        uint32    `gorm:"not null"`
	Kind       string    `gorm:"index;size:16"`
	Handle     string    `gorm:"size:16"`
	Role       string    `gorm:"index;size:16"`
	Start      uint32
	StartType  string    `gorm:"size:8"`
	RFEvents   string    `gorm:"size:64"`
	Error      string    `gorm:"size:255"`
	RecordedAt time.Time
}

// TableName specifies the table name for GORM
func (EventRecord) TableName() string {
	return "sched_events"
}

// batchSize bounds the rows written per insert statement.
const batchSize = 500

// Store buffers events in memory and writes them to SQLite on Flush, so a
// slow disk never holds up the scheduler.
type Store struct {
	db  *gorm.DB
	run string
	log *log.Logger

	mu      sync.Mutex
	pending []EventRecord
}

// OpenStore opens or creates the database at path. Events recorded through
// the store are tagged with run.
func OpenStore(path, run string, l *log.Logger) (*Store, error) {
	var gormLog logger.Interface
	if l != nil {
		gormLog = logger.New(
			l,
			logger.Config{
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
	} else {
		gormLog = logger.Default.LogMode(logger.Silent)
	}

	// pure Go driver registered by modernc.org/sqlite
	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open trace db %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate trace db: %w", err)
	}
	if l != nil {
		l.Printf("trace: database initialized: %s", path)
	}
	return &Store{db: db, run: run, log: l}, nil
}

func configureSQLite(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=memory",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Record implements sched.Recorder.
func (s *Store) Record(ev sched.Event) {
	rec := EventRecord{
		Run:        s.run,
		RAT:        uint32(ev.Time),
		Kind:       ev.Kind.String(),
		Handle:     ev.Handle.String(),
		Role:       ev.Role.String(),
		Start:      uint32(ev.Start),
		StartType:  ev.StartType.String(),
		RFEvents:   ev.RFEvents.String(),
		RecordedAt: time.Now(),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	s.mu.Lock()
	s.pending = append(s.pending, rec)
	s.mu.Unlock()
}

// Pending returns the number of buffered events.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes the buffered events in one transaction.
func (s *Store) Flush() error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(batch, batchSize).Error
	})
	if err != nil {
		// keep the events for the next attempt
		for i := range batch {
			batch[i].ID = 0
		}
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		s.mu.Unlock()
		return fmt.Errorf("flush %d events: %w", len(batch), err)
	}
	return nil
}

// Count returns the number of stored events of this run.
func (s *Store) Count() (int64, error) {
	var count int64
	err := s.db.Model(&EventRecord{}).Where("run = ?", s.run).Count(&count).Error
	return count, err
}

// Events returns the stored events of this run with the given kind, oldest
// first. An empty kind matches every event.
func (s *Store) Events(kind string, limit int) ([]EventRecord, error) {
	var out []EventRecord
	q := s.db.Where("run = ?", s.run)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

// KindCounts returns how many events of each kind this run stored.
func (s *Store) KindCounts() (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	err := s.db.Model(&EventRecord{}).
		Select("kind, count(*) as total").
		Where("run = ?", s.run).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Total
	}
	return out, nil
}

// Close flushes pending events and closes the database.
func (s *Store) Close() error {
	flushErr := s.Flush()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return flushErr
}
