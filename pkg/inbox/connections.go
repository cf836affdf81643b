package inbox

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

// GetConnection loads a platform connection by id
func (s *Store) GetConnection(ctx context.Context, id string) (*models.PlatformConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conn models.PlatformConnection
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&conn).Error; err != nil {
		return nil, &PersistenceError{Op: "get connection", Err: err}
	}
	return &conn, nil
}

// ConnectionsDueForSync lists connections that are healthy enough to pull from
func (s *Store) ConnectionsDueForSync(ctx context.Context) ([]models.PlatformConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conns []models.PlatformConnection
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.ConnectionStatus{models.ConnectionConnected, models.ConnectionError}).
		Order("id").
		Find(&conns).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list connections due for sync", Err: err}
	}
	return conns, nil
}

// ApplySyncResult records the outcome of one sync run. It runs exactly once per
// run: success resets the failure counter, failure increments it and records
// the last error.
func (s *Store) ApplySyncResult(ctx context.Context, connID string, synced int64, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	updates := map[string]interface{}{
		"last_synced_at": now,
		"total_synced":   gorm.Expr("total_synced + ?", synced),
		"updated_at":     now,
	}

	if runErr == nil {
		updates["failure_count"] = 0
		updates["last_error"] = ""
		updates["status"] = models.ConnectionConnected
	} else {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
		updates["last_error"] = runErr.Error()
		updates["status"] = models.ConnectionError
	}

	result := s.db.WithContext(ctx).Table("platform_connections").
		Where("id = ?", connID).
		Updates(updates)
	if result.Error != nil {
		return &PersistenceError{Op: "apply sync result", Err: result.Error}
	}

	s.logger.WithFields(logrus.Fields{
		"method":        "ApplySyncResult",
		"connection_id": connID,
		"synced":        synced,
		"error":         runErr,
	}).Debug("Sync statistics updated")

	return nil
}

// SaveTokens persists refreshed OAuth credentials on the connection
func (s *Store) SaveTokens(ctx context.Context, connID, accessToken, refreshToken string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
		"status":       models.ConnectionConnected,
		"updated_at":   time.Now(),
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}

	result := s.db.WithContext(ctx).Table("platform_connections").
		Where("id = ?", connID).
		Updates(updates)
	if result.Error != nil {
		return &PersistenceError{Op: "save tokens", Err: result.Error}
	}
	return nil
}

// MarkTokenExpired flags a connection whose refresh attempt failed
func (s *Store) MarkTokenExpired(ctx context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Table("platform_connections").
		Where("id = ?", connID).
		Updates(map[string]interface{}{
			"status":     models.ConnectionTokenExpired,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return &PersistenceError{Op: "mark token expired", Err: result.Error}
	}
	return nil
}
