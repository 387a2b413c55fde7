package repository

import (
	"fmt"

	"gorm.io/gorm"

	"sysdesign-ai/internal/model"
)

type PlanExportRepository struct {
	db *gorm.DB
}

func NewPlanExportRepository(db *gorm.DB) *PlanExportRepository {
	return &PlanExportRepository{db: db}
}

func (r *PlanExportRepository) Create(export *model.PlanExport) error {
	if err := r.db.Create(export).Error; err != nil {
		return fmt.Errorf("create plan export failed: %w", err)
	}
	return nil
}

func (r *PlanExportRepository) ListBySessionID(sessionID string) ([]model.PlanExport, error) {
	var exports []model.PlanExport
	if err := r.db.Where("session_id = ?", sessionID).Order("exported_at DESC").Find(&exports).Error; err != nil {
		return nil, fmt.Errorf("list plan exports failed: %w", err)
	}
	return exports, nil
}

func (r *PlanExportRepository) ListRecent(limit int) ([]model.PlanExport, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var exports []model.PlanExport
	if err := r.db.Order("exported_at DESC").Limit(limit).Find(&exports).Error; err != nil {
		return nil, fmt.Errorf("list recent plan exports failed: %w", err)
	}
	return exports, nil
}
