// Package report persists the results machines report per batch and
// serves them back for dashboards.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang/snappy"
	"github.com/mufat/mufat/pkg/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DefaultCacheTTL is how long a loaded report stays cached.
const DefaultCacheTTL = time.Hour

var (
	// ErrInvalidReport is returned when a report lacks its db, key or name.
	ErrInvalidReport = errors.New("report is missing attributes")

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// TableName derives the table of a logical database name. A file-like name
// such as "/data/dailygrid_MacSDK.db" maps to "dailygrid_MacSDK".
func TableName(db string) (string, error) {
	name := filepath.Base(db)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid report database name %q", db)
	}

	return name, nil
}

// Store persists reports.
type Store struct {
	log   logrus.FieldLogger
	cfg   *config.APIDatabaseConfig
	cache Cache
	ttl   time.Duration
	db    *gorm.DB

	mu       sync.Mutex
	migrated map[string]bool
}

// NewStore creates a store backed by the configured database driver. A nil
// cache disables caching.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.APIDatabaseConfig,
	cache Cache,
) *Store {
	if cache == nil {
		cache = NopCache{}
	}

	return &Store{
		log:      log.WithField("component", "report-store"),
		cfg:      cfg,
		cache:    cache,
		ttl:      DefaultCacheTTL,
		migrated: make(map[string]bool),
	}
}

// Start opens the database connection.
func (s *Store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dialector = postgres.Open(s.cfg.Postgres.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	s.db = db

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *Store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// table resolves db to its table, creating the table on first use.
func (s *Store) table(ctx context.Context, db string) (string, error) {
	table, err := TableName(db)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.migrated[table] {
		return table, nil
	}

	if err := s.db.WithContext(ctx).Table(table).AutoMigrate(&Row{}); err != nil {
		return "", fmt.Errorf("migrating table %s: %w", table, err)
	}

	s.migrated[table] = true

	return table, nil
}

// Save upserts rep. On a key collision only the payload is replaced. The
// cache entry of the report is dropped.
func (s *Store) Save(ctx context.Context, rep *Report) error {
	if rep == nil || rep.DB == "" || rep.Key == "" || rep.Name == "" {
		return ErrInvalidReport
	}

	table, err := s.table(ctx, rep.DB)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(rep.Report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	row := Row{
		Key:    rep.Key,
		Name:   rep.Name,
		Report: snappy.Encode(nil, payload),
		SvnRev: rep.SvnRev,
	}

	err = s.db.WithContext(ctx).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"report"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving report %s/%s: %w", rep.Key, rep.Name, err)
	}

	if err := s.cache.Delete(ctx, CacheKey(table, rep.Key, rep.Name)); err != nil {
		s.log.WithError(err).Warn("Failed to invalidate cached report")
	}

	return nil
}

// Load returns the reports of batch key in db, limited to machine when it
// is not empty. A cached report for machine is returned without a query.
func (s *Store) Load(ctx context.Context, db, key, machine string) ([]*Report, error) {
	table, err := s.table(ctx, db)
	if err != nil {
		return nil, err
	}

	if machine != "" {
		if rep, ok := s.cached(ctx, CacheKey(table, key, machine)); ok {
			return []*Report{rep}, nil
		}
	}

	q := s.db.WithContext(ctx).Table(table).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key})
	if machine != "" {
		q = q.Where(clause.Eq{Column: clause.Column{Name: "name"}, Value: machine})
	}

	var rows []Row
	if err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: "name"}}).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading reports for %s: %w", key, err)
	}

	reports := make([]*Report, 0, len(rows))

	for _, row := range rows {
		rep, err := decodeRow(table, row)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(rep); err == nil {
			if err := s.cache.Set(ctx, CacheKey(table, rep.Key, rep.Name), data, s.ttl); err != nil {
				s.log.WithError(err).Warn("Failed to cache report")
			}
		}

		reports = append(reports, rep)
	}

	return reports, nil
}

func (s *Store) cached(ctx context.Context, key string) (*Report, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read cached report")

		return nil, false
	}

	if !ok {
		return nil, false
	}

	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, false
	}

	return &rep, true
}

func decodeRow(table string, row Row) (*Report, error) {
	data, err := snappy.Decode(nil, row.Report)
	if err != nil {
		return nil, fmt.Errorf("decompressing report %s/%s: %w", row.Key, row.Name, err)
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding report %s/%s: %w", row.Key, row.Name, err)
	}

	return &Report{
		DB:        table,
		Key:       row.Key,
		Name:      row.Name,
		SvnRev:    row.SvnRev,
		Report:    payload,
		Timestamp: row.Timestamp,
	}, nil
}

// Days returns the distinct batch keys of db, newest first.
func (s *Store) Days(ctx context.Context, db string) ([]string, error) {
	table, err := s.table(ctx, db)
	if err != nil {
		return nil, err
	}

	var keys []string

	err = s.db.WithContext(ctx).Table(table).Distinct().
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}, Desc: true}).
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("listing days: %w", err)
	}

	return keys, nil
}

type machineDay struct {
	Key  string `gorm:"column:key"`
	Name string `gorm:"column:name"`
}

// MachineDays maps every machine of db to its batch keys, oldest first.
func (s *Store) MachineDays(ctx context.Context, db string) (map[string][]string, error) {
	table, err := s.table(ctx, db)
	if err != nil {
		return nil, err
	}

	var rows []machineDay

	err = s.db.WithContext(ctx).Session(&gorm.Session{QueryFields: true}).Table(table).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "name"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing machine days: %w", err)
	}

	out := make(map[string][]string)
	for _, row := range rows {
		out[row.Name] = append(out[row.Name], row.Key)
	}

	return out, nil
}
