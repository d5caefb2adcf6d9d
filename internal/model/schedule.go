package model

import "time"

// ScheduleRecord holds the persisted schedule configuration for a device.
// Config is an opaque JSON document whose shape is owned by the controller
// that writes it. At most one record exists per device name.
type ScheduleRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Device    string    `gorm:"uniqueIndex;size:128;not null"`
	Config    string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
