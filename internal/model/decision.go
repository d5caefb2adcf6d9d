package model

import "time"

// AIDecision stores one advisory recommendation per device per calendar
// date. Recomputing the same day overwrites the earlier row.
type AIDecision struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	Device      string  `gorm:"uniqueIndex:idx_decision_device_date;size:128;not null"`
	Date        string  `gorm:"uniqueIndex:idx_decision_device_date;size:10;not null"` // YYYY-MM-DD
	Duration    int     `gorm:"not null"`
	Temperature *float64
	Humidity    *float64
	Forecast    string
	Reasoning   string
	ShouldAct   bool `gorm:"not null;default:true"`
	CreatedAt   time.Time
}
