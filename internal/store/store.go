package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joltersapp/homecontrol/internal/model"
)

// Store defines the persistence operations used by the controllers: keyed
// schedule upserts, the append-only job log, per-day advisory decisions,
// and user feedback.
type Store interface {
	UpsertSchedule(ctx context.Context, device string, config any) error
	GetSchedule(ctx context.Context, device string, out any) (bool, error)
	DeleteSchedule(ctx context.Context, device string) error

	CreateJob(ctx context.Context, device, session string, start time.Time, cond Conditions) (int64, error)
	CloseJob(ctx context.Context, jobID int64, end time.Time) (int, error)
	RecordEvent(ctx context.Context, device, session string, at time.Time, cond Conditions) error
	JobsByDevice(ctx context.Context, device string, limit int) ([]model.JobRecord, error)
	ActiveJob(ctx context.Context, device string) (*model.JobRecord, error)
	WateringSummary(ctx context.Context, device string, days int, now time.Time) (WateringSummary, error)

	UpsertDecision(ctx context.Context, d *model.AIDecision) error
	DecisionForDate(ctx context.Context, device, date string) (*model.AIDecision, error)
	DecisionHistory(ctx context.Context, device string, limit int) ([]model.AIDecision, error)

	SaveFeedback(ctx context.Context, fb *model.UserFeedback) error

	DB() *gorm.DB
}

// DailyWatering is one day of completed watering runs.
type DailyWatering struct {
	Date         string `json:"date"`
	TotalMinutes int    `json:"total_minutes"`
	Runs         int    `json:"num_runs"`
}

// WateringSummary aggregates completed watering jobs over a trailing window.
type WateringSummary struct {
	LastWatered           string          `json:"lastWatered"`
	DaysSinceLastWatering int             `json:"daysSinceLastWatering"`
	TotalMinutes          int             `json:"totalMinutes"`
	Daily                 []DailyWatering `json:"dailyHistory"`
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// UpsertSchedule writes a device's schedule document, last writer wins.
func (s *gormStore) UpsertSchedule(ctx context.Context, device string, config any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal schedule config for %s: %w", device, err)
	}
	rec := model.ScheduleRecord{
		Device:    device,
		Config:    string(raw),
		UpdatedAt: time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device"}},
		DoUpdates: clause.AssignmentColumns([]string{"config", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert schedule for %s: %w", device, err)
	}
	return nil
}

// GetSchedule loads a device's schedule document into out. It returns false
// with a nil error when no record exists.
func (s *gormStore) GetSchedule(ctx context.Context, device string, out any) (bool, error) {
	var rec model.ScheduleRecord
	err := s.db.WithContext(ctx).Where("device = ?", device).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load schedule for %s: %w", device, err)
	}
	if err := json.Unmarshal([]byte(rec.Config), out); err != nil {
		return false, fmt.Errorf("decode schedule config for %s: %w", device, err)
	}
	return true, nil
}

// DeleteSchedule removes a device's schedule document if present.
func (s *gormStore) DeleteSchedule(ctx context.Context, device string) error {
	err := s.db.WithContext(ctx).Where("device = ?", device).Delete(&model.ScheduleRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete schedule for %s: %w", device, err)
	}
	return nil
}

// CreateJob opens a session row with a nil end time and returns its ID.
func (s *gormStore) CreateJob(ctx context.Context, device, session string, start time.Time, cond Conditions) (int64, error) {
	raw, err := EncodeConditions(cond)
	if err != nil {
		return 0, err
	}
	job := model.JobRecord{
		Device:     device,
		Session:    session,
		StartTime:  start,
		Conditions: raw,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return 0, fmt.Errorf("create job for %s: %w", device, err)
	}
	return job.ID, nil
}

// CloseJob fills the end time and duration of an open session row and
// returns the duration in minutes.
func (s *gormStore) CloseJob(ctx context.Context, jobID int64, end time.Time) (int, error) {
	var job model.JobRecord
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return 0, fmt.Errorf("load job %d: %w", jobID, err)
	}
	minutes := int(end.Sub(job.StartTime).Round(time.Minute) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	err := s.db.WithContext(ctx).Model(&model.JobRecord{}).
		Where("id = ?", jobID).
		Updates(map[string]any{"end_time": end, "duration": minutes}).Error
	if err != nil {
		return 0, fmt.Errorf("close job %d: %w", jobID, err)
	}
	return minutes, nil
}

// RecordEvent appends an already-closed, zero-duration audit row. Used for
// climate adjustments, monitoring snapshots and HVAC transitions.
func (s *gormStore) RecordEvent(ctx context.Context, device, session string, at time.Time, cond Conditions) error {
	raw, err := EncodeConditions(cond)
	if err != nil {
		return err
	}
	zero := 0
	job := model.JobRecord{
		Device:     device,
		Session:    session,
		StartTime:  at,
		EndTime:    &at,
		Duration:   &zero,
		Conditions: raw,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return fmt.Errorf("record %s event for %s: %w", session, device, err)
	}
	return nil
}

// JobsByDevice returns the most recent job rows for a device.
func (s *gormStore) JobsByDevice(ctx context.Context, device string, limit int) ([]model.JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []model.JobRecord
	err := s.db.WithContext(ctx).
		Where("device = ?", device).
		Order("start_time DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", device, err)
	}
	return jobs, nil
}

// ActiveJob returns the newest open session row for a device, or nil.
func (s *gormStore) ActiveJob(ctx context.Context, device string) (*model.JobRecord, error) {
	var job model.JobRecord
	err := s.db.WithContext(ctx).
		Where("device = ? AND end_time IS NULL", device).
		Order("start_time DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active job for %s: %w", device, err)
	}
	return &job, nil
}

// WateringSummary aggregates completed runs for a device over the trailing
// window, newest day first.
func (s *gormStore) WateringSummary(ctx context.Context, device string, days int, now time.Time) (WateringSummary, error) {
	since := now.AddDate(0, 0, -days)

	var daily []DailyWatering
	err := s.db.WithContext(ctx).
		Model(&model.JobRecord{}).
		Select("DATE(start_time) AS date, COALESCE(SUM(duration), 0) AS total_minutes, COUNT(*) AS runs").
		Where("device = ? AND end_time IS NOT NULL AND start_time >= ?", device, since).
		Group("DATE(start_time)").
		Order("DATE(start_time) DESC").
		Scan(&daily).Error
	if err != nil {
		return WateringSummary{}, fmt.Errorf("watering summary for %s: %w", device, err)
	}

	summary := WateringSummary{Daily: daily, DaysSinceLastWatering: 999}
	for _, d := range daily {
		summary.TotalMinutes += d.TotalMinutes
	}
	if len(daily) > 0 {
		summary.LastWatered = daily[0].Date
		if last, err := time.Parse("2006-01-02", daily[0].Date); err == nil {
			summary.DaysSinceLastWatering = int(now.Sub(last).Hours() / 24)
		}
	}
	return summary, nil
}

// UpsertDecision stores the advisory recommendation for (device, date),
// replacing any earlier decision for the same day.
func (s *gormStore) UpsertDecision(ctx context.Context, d *model.AIDecision) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"duration", "temperature", "humidity", "forecast", "reasoning", "should_act",
		}),
	}).Create(d).Error
	if err != nil {
		return fmt.Errorf("upsert decision for %s on %s: %w", d.Device, d.Date, err)
	}
	return nil
}

// DecisionForDate returns the stored decision for a device and date, or nil.
func (s *gormStore) DecisionForDate(ctx context.Context, device, date string) (*model.AIDecision, error) {
	var d model.AIDecision
	err := s.db.WithContext(ctx).
		Where("device = ? AND date = ?", device, date).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load decision for %s on %s: %w", device, date, err)
	}
	return &d, nil
}

// DecisionHistory returns recent decisions for a device, newest first.
func (s *gormStore) DecisionHistory(ctx context.Context, device string, limit int) ([]model.AIDecision, error) {
	if limit <= 0 {
		limit = 30
	}
	var decisions []model.AIDecision
	err := s.db.WithContext(ctx).
		Where("device = ?", device).
		Order("date DESC").
		Limit(limit).
		Find(&decisions).Error
	if err != nil {
		return nil, fmt.Errorf("list decisions for %s: %w", device, err)
	}
	return decisions, nil
}

// SaveFeedback appends a user comfort report.
func (s *gormStore) SaveFeedback(ctx context.Context, fb *model.UserFeedback) error {
	if err := s.db.WithContext(ctx).Create(fb).Error; err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}
