package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("record not found")

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&CacheEntry{}, &DocumentRecord{}, &AnalysisJob{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection.
func (d *Database) Ping() error {
	if d == nil {
		return errors.New("database is nil")
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetCacheEntry loads a cache row. Expired rows are reported as ErrNotFound.
func (d *Database) GetCacheEntry(key string) (*CacheEntry, error) {
	var entry CacheEntry
	err := d.gorm.Where("cache_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if entry.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// UpsertCacheEntry inserts or replaces a cache row as a whole.
func (d *Database) UpsertCacheEntry(entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"document_id", "language", "payload", "expires_at", "updated_at"}),
	}).Create(entry).Error
}

// PurgeExpiredCache removes rows past their expiry and returns how many were deleted.
func (d *Database) PurgeExpiredCache(now time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := d.gorm.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&CacheEntry{})
	return res.RowsAffected, res.Error
}

// SaveDocument inserts or updates the document record.
func (d *Database) SaveDocument(doc *DocumentRecord) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return errors.New("document id is empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"filename",
			"mime_type",
			"language",
			"language_confidence",
			"clause_count",
			"overall_risk",
			"high_risk_clauses",
			"types_json",
			"processing_time_ms",
		}),
	}).Create(doc).Error
}

// GetDocument loads a document record by ID.
func (d *Database) GetDocument(id string) (*DocumentRecord, error) {
	var doc DocumentRecord
	err := d.gorm.Where("id = ?", id).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DocumentQuery encapsulates filters and pagination for listing documents.
type DocumentQuery struct {
	Query    string
	Language string
	Risk     string
	Sort     string
	Offset   int
	Limit    int
}

// ListDocuments returns paginated document records applying optional filters.
func (d *Database) ListDocuments(opts DocumentQuery) ([]DocumentRecord, int64, error) {
	var total int64
	base := d.gorm.Model(&DocumentRecord{})
	if q := strings.TrimSpace(opts.Query); q != "" {
		like := fmt.Sprintf("%%%s%%", q)
		base = base.Where("filename LIKE ? OR id LIKE ?", like, like)
	}
	if language := strings.TrimSpace(opts.Language); language != "" {
		base = base.Where("language = ?", strings.ToLower(language))
	}
	if risk := strings.TrimSpace(opts.Risk); risk != "" {
		base = base.Where("overall_risk = ?", strings.ToLower(risk))
	}
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := base.Order(orderForSort(opts.Sort)).Offset(opts.Offset)
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	var rows []DocumentRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func orderForSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "created_asc":
		return "created_at ASC"
	case "risk_desc":
		return "high_risk_clauses DESC, created_at DESC"
	case "filename_asc":
		return "filename ASC"
	default:
		return "created_at DESC"
	}
}

// CreateJob records a new analysis job.
func (d *Database) CreateJob(job *AnalysisJob) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = JobRunning
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(job).Error
}

// UpdateJob updates status and message; terminal statuses stamp FinishedAt.
func (d *Database) UpdateJob(jobID, status, message string, clauseCount int, documentID string) error {
	updates := map[string]any{"status": status, "message": truncate(message, 255)}
	if clauseCount > 0 {
		updates["clause_count"] = clauseCount
	}
	if documentID != "" {
		updates["document_id"] = documentID
	}
	switch status {
	case JobCompleted, JobFailed, JobCancelled:
		now := time.Now()
		updates["finished_at"] = &now
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Model(&AnalysisJob{}).Where("job_id = ?", jobID).Updates(updates).Error
}

// GetJob fetches a job by ID.
func (d *Database) GetJob(jobID string) (*AnalysisJob, error) {
	var job AnalysisJob
	err := d.gorm.Where("job_id = ?", jobID).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the most recent jobs first.
func (d *Database) ListJobs(limit int) ([]AnalysisJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []AnalysisJob
	if err := d.gorm.Order("created_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkInterruptedJobs flags jobs left running by a previous process as failed.
func (d *Database) MarkInterruptedJobs() (int64, error) {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	res := d.gorm.Model(&AnalysisJob{}).
		Where("status = ?", JobRunning).
		Updates(map[string]any{"status": JobFailed, "message": "interrupted by restart", "finished_at": &now})
	return res.RowsAffected, res.Error
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_cache_entries_document_language ON cache_entries(document_id, language)",
		"CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status_updated ON analysis_jobs(status, updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_document_records_created ON document_records(created_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
