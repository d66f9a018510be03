package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/memflow/types"
)

// archivedRecord is the SQLite row shape for a long-term record.
// Fingerprint, context, and result are stored as JSON text.
type archivedRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	Description string `gorm:"type:text"`
	Fingerprint string `gorm:"type:text"`
	Context     string `gorm:"type:text"`
	Result      string `gorm:"type:text"`
	Success     bool
	Confidence  float64
	CreatedAt   time.Time `gorm:"index"`
	AccessCount int
}

func (archivedRecord) TableName() string { return "task_records" }

// Archive persists long-term tier snapshots to SQLite. Save replaces
// the previous snapshot wholesale; Load returns the latest one.
type Archive struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewArchive wraps an existing database handle and migrates the schema.
func NewArchive(db *gorm.DB, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&archivedRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}
	return &Archive{
		db:     db,
		logger: logger.With(zap.String("component", "archive")),
	}, nil
}

// OpenArchive opens (or creates) the SQLite file at path.
func OpenArchive(path string, logger *zap.Logger) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return NewArchive(db, logger)
}

// Close releases the underlying database connection.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save replaces the stored snapshot with recs in one transaction.
func (a *Archive) Save(ctx context.Context, recs []*types.TaskRecord) error {
	rows := make([]archivedRecord, 0, len(recs))
	for _, rec := range recs {
		row, err := toArchivedRecord(rec)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&archivedRecord{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save archive snapshot: %w", err)
	}

	a.logger.Info("archive snapshot saved", zap.Int("records", len(rows)))
	return nil
}

// Load returns the stored snapshot, oldest records first.
func (a *Archive) Load(ctx context.Context) ([]*types.TaskRecord, error) {
	var rows []archivedRecord
	if err := a.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load archive snapshot: %w", err)
	}

	out := make([]*types.TaskRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromArchivedRecord(row)
		if err != nil {
			a.logger.Warn("skipping undecodable archived record",
				zap.String("id", row.ID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func toArchivedRecord(rec *types.TaskRecord) (archivedRecord, error) {
	fingerprint, err := json.Marshal(rec.Fingerprint)
	if err != nil {
		return archivedRecord{}, fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	row := archivedRecord{
		ID:          rec.ID,
		Description: rec.Description,
		Fingerprint: string(fingerprint),
		Success:     rec.Success,
		Confidence:  rec.Confidence,
		CreatedAt:   rec.CreatedAt,
		AccessCount: rec.AccessCount,
	}

	if rec.Context != nil {
		data, err := json.Marshal(rec.Context)
		if err != nil {
			return archivedRecord{}, fmt.Errorf("failed to encode context: %w", err)
		}
		row.Context = string(data)
	}
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return archivedRecord{}, fmt.Errorf("failed to encode result: %w", err)
		}
		row.Result = string(data)
	}
	return row, nil
}

func fromArchivedRecord(row archivedRecord) (*types.TaskRecord, error) {
	rec := &types.TaskRecord{
		ID:          row.ID,
		Description: row.Description,
		Success:     row.Success,
		Confidence:  row.Confidence,
		CreatedAt:   row.CreatedAt,
		AccessCount: row.AccessCount,
		StoreTier:   types.TierLongTerm,
	}

	if row.Fingerprint != "" {
		if err := json.Unmarshal([]byte(row.Fingerprint), &rec.Fingerprint); err != nil {
			return nil, fmt.Errorf("failed to decode fingerprint: %w", err)
		}
	}
	if row.Context != "" {
		if err := json.Unmarshal([]byte(row.Context), &rec.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context: %w", err)
		}
	}
	if row.Result != "" {
		if err := json.Unmarshal([]byte(row.Result), &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return rec, nil
}
