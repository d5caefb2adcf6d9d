package model

import "time"

// UserFeedback records a comfort report submitted against the climate
// controller, together with the conditions at the time it was given.
type UserFeedback struct {
	ID                 int64   `gorm:"primaryKey;autoIncrement"`
	FeedbackType       string  `gorm:"index;size:32;not null"` // too_cold, too_hot, comfortable
	RoomTemp           float64 `gorm:"not null"`
	ThermostatSetpoint float64 `gorm:"not null"`
	HVACMode           string  `gorm:"size:32"`
	Rate15Min          *float64
	Rate30Min          *float64
	CreatedAt          time.Time `gorm:"index:,sort:desc"`
}
