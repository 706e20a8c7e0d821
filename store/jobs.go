package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/blndgs/okto"
)

// JobStore is the local ledger of submitted jobs.
type JobStore interface {
	Save(ctx context.Context, job *okto.Job) error
	UpdateStatus(ctx context.Context, jobID string, status okto.JobStatus, reason, txHash string) error
	Get(ctx context.Context, jobID string) (*okto.Job, error)
	// List returns the most recent jobs of sender first.
	List(ctx context.Context, sender string, limit int) ([]okto.Job, error)
}

type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]okto.Job
	now  func() time.Time
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]okto.Job), now: time.Now}
}

func (s *MemoryJobStore) Save(_ context.Context, job *okto.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, jobID string, status okto.JobStatus, reason, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.Reason = reason
	if txHash != "" {
		job.TransactionHash = txHash
	}
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (*okto.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) List(_ context.Context, sender string, limit int) ([]okto.Job, error) {
	s.mu.RLock()
	jobs := make([]okto.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if senderKey(j.Sender) == senderKey(sender) {
			jobs = append(jobs, j)
		}
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// jobRow is the gorm model of a ledger entry.
type jobRow struct {
	ID              string `gorm:"primaryKey;size:64"`
	Type            string `gorm:"size:32"`
	Caip2ID         string `gorm:"size:64;index"`
	Sender          string `gorm:"size:42;index"`
	UserOpHash      string `gorm:"size:66"`
	TransactionHash string `gorm:"size:66"`
	Status          string `gorm:"size:32;index"`
	Reason          string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (jobRow) TableName() string {
	return "okto_jobs"
}

// senderKey is the checksummed form a sender is stored and queried by.
func senderKey(sender string) string {
	if !common.IsHexAddress(sender) {
		return sender
	}
	return common.HexToAddress(sender).Hex()
}

func toRow(j *okto.Job) *jobRow {
	return &jobRow{
		ID:              j.ID,
		Type:            string(j.Type),
		Caip2ID:         j.Caip2ID,
		Sender:          senderKey(j.Sender),
		UserOpHash:      j.UserOpHash,
		TransactionHash: j.TransactionHash,
		Status:          string(j.Status),
		Reason:          j.Reason,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

func (r *jobRow) toJob() okto.Job {
	return okto.Job{
		ID:              r.ID,
		Type:            okto.IntentType(r.Type),
		Caip2ID:         r.Caip2ID,
		Sender:          r.Sender,
		UserOpHash:      r.UserOpHash,
		TransactionHash: r.TransactionHash,
		Status:          okto.JobStatus(r.Status),
		Reason:          r.Reason,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// GormJobStore keeps the ledger in a SQL database.
type GormJobStore struct {
	db *gorm.DB
}

// OpenMySQL connects to MySQL. The DSN needs parseTime=True, e.g.
// "user:pass@tcp(127.0.0.1:3306)/okto?charset=utf8mb4&parseTime=True&loc=Local".
func OpenMySQL(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

// NewGormJobStore migrates the jobs table and returns the store.
func NewGormJobStore(db *gorm.DB) (*GormJobStore, error) {
	if err := db.AutoMigrate(&jobRow{}); err != nil {
		return nil, err
	}
	return &GormJobStore{db: db}, nil
}

// Save inserts job, replacing any row with the same id.
func (s *GormJobStore) Save(ctx context.Context, job *okto.Job) error {
	return s.db.WithContext(ctx).Save(toRow(job)).Error
}

func (s *GormJobStore) UpdateStatus(ctx context.Context, jobID string, status okto.JobStatus, reason, txHash string) error {
	updates := map[string]any{
		"status": string(status),
		"reason": reason,
	}
	if txHash != "" {
		updates["transaction_hash"] = txHash
	}
	// MySQL reports zero affected rows for unchanged values, so a missing
	// job is not detected here.
	return s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", jobID).Updates(updates).Error
}

func (s *GormJobStore) Get(ctx context.Context, jobID string) (*okto.Job, error) {
	var row jobRow
	err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job := row.toJob()
	return &job, nil
}

func (s *GormJobStore) List(ctx context.Context, sender string, limit int) ([]okto.Job, error) {
	q := s.db.WithContext(ctx).Where("sender = ?", senderKey(sender)).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []jobRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	jobs := make([]okto.Job, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toJob()
	}
	return jobs, nil
}
