package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

// DatabaseStore implements Store on PostgreSQL via GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Flow operations

func (d *DatabaseStore) CreateFlow(flow *models.Flow) (*models.Flow, error) {
	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	if err := d.db.Create(flow).Error; err != nil {
		return nil, err
	}
	return flow, nil
}

func (d *DatabaseStore) GetFlow(id string) (*models.Flow, error) {
	var flow models.Flow
	err := d.db.First(&flow, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

func (d *DatabaseStore) GetFlowsByOrganization(organizationID string) ([]*models.Flow, error) {
	var flows []*models.Flow
	err := d.db.Where("organization_id = ?", organizationID).
		Order("created_at asc").Find(&flows).Error
	return flows, err
}

func (d *DatabaseStore) GetActiveFlows(organizationID string) ([]*models.Flow, error) {
	var flows []*models.Flow
	err := d.db.Where("organization_id = ? AND is_active = ?", organizationID, true).
		Order("created_at asc").Find(&flows).Error
	return flows, err
}

func (d *DatabaseStore) UpdateFlow(flow *models.Flow) error {
	return d.db.Save(flow).Error
}

func (d *DatabaseStore) DeleteFlow(id string) error {
	return d.db.Delete(&models.Flow{}, "id = ?", id).Error
}

// Session operations

func (d *DatabaseStore) CreateSession(session *models.ChatSession) (*models.ChatSession, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	session.LastActiveAt = time.Now()
	if err := d.db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (d *DatabaseStore) GetSession(id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := d.db.First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) GetSessionsByOrganization(organizationID string) ([]*models.ChatSession, error) {
	var sessions []*models.ChatSession
	err := d.db.Where("organization_id = ?", organizationID).
		Order("started_at asc").Find(&sessions).Error
	return sessions, err
}

func (d *DatabaseStore) GetActiveSessionByCustomer(organizationID, customerID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := d.db.Where("organization_id = ? AND customer_id = ? AND status IN ?",
		organizationID, customerID,
		[]string{models.SessionStatusActive, models.SessionStatusDelayed}).
		Order("started_at desc").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) UpdateSession(session *models.ChatSession) error {
	return d.db.Save(session).Error
}

func (d *DatabaseStore) GetDueDelayedSessions(now time.Time) ([]*models.ChatSession, error) {
	var sessions []*models.ChatSession
	err := d.db.Where("status = ? AND wake_at <= ?", models.SessionStatusDelayed, now).
		Find(&sessions).Error
	return sessions, err
}

func (d *DatabaseStore) GetStaleActiveSessions(cutoff time.Time) ([]*models.ChatSession, error) {
	var sessions []*models.ChatSession
	err := d.db.Where("status = ? AND last_active_at < ?", models.SessionStatusActive, cutoff).
		Find(&sessions).Error
	return sessions, err
}

func (d *DatabaseStore) GetSessionStats(organizationID string) (*models.SessionStats, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := d.db.Model(&models.ChatSession{}).
		Select("status, count(*) as count").
		Where("organization_id = ?", organizationID).
		Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &models.SessionStats{}
	for _, r := range rows {
		stats.Total += r.Count
		switch r.Status {
		case models.SessionStatusActive:
			stats.Active = r.Count
		case models.SessionStatusDelayed:
			stats.Delayed = r.Count
		case models.SessionStatusCompleted:
			stats.Completed = r.Count
		case models.SessionStatusTransferred:
			stats.Transferred = r.Count
		case models.SessionStatusDropped:
			stats.Dropped = r.Count
		}
	}
	return stats, nil
}
