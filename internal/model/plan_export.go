package model

import "time"

// PlanExport archives one workbook download.
type PlanExport struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SessionID       string    `gorm:"size:36;not null;index" json:"session_id"`
	Prompt          string    `gorm:"type:text;not null" json:"prompt"`
	FileName        string    `gorm:"size:255;not null" json:"file_name"`
	ComponentRows   int       `gorm:"not null" json:"component_rows"`
	RequirementRows int       `gorm:"not null" json:"requirement_rows"`
	FMEARows        int       `gorm:"not null" json:"fmea_rows"`
	DVPRRows        int       `gorm:"not null" json:"dvpr_rows"`
	ExportedAt      time.Time `gorm:"not null;index" json:"exported_at"`
	CreatedAt       time.Time `json:"created_at"`
}
