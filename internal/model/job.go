package model

import "time"

// JobRecord is one row of the append-only device session log. A row with a
// nil EndTime is an in-flight session; the owning controller fills EndTime
// and Duration exactly once when the session completes.
type JobRecord struct {
	ID         int64      `gorm:"primaryKey;autoIncrement"`
	Device     string     `gorm:"index;size:128;not null"`
	Session    string     `gorm:"size:256"`
	StartTime  time.Time  `gorm:"index:,sort:desc;not null"`
	EndTime    *time.Time
	Duration   *int // minutes
	Conditions string
	CreatedAt  time.Time
}
