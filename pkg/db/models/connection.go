package models

import (
	"time"
)

// ConnectionStatus reflects the health of a platform binding
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
	ConnectionTokenExpired ConnectionStatus = "token_expired"
)

// PlatformConnection is one authorized binding between an organization and a
// platform account. It owns the credentials adapters and sync runs need.
// At most one active connection exists per (organization, platform, platform user).
type PlatformConnection struct {
	ID             string   `gorm:"primaryKey;column:id"`
	OrganizationID string   `gorm:"column:organization_id;not null;uniqueIndex:ux_org_platform_user,priority:1"`
	Platform       Platform `gorm:"column:platform;not null;uniqueIndex:ux_org_platform_user,priority:2"`
	PlatformUserID string   `gorm:"column:platform_user_id;not null;uniqueIndex:ux_org_platform_user,priority:3"`

	// OAuth credentials
	AccessToken  string    `gorm:"column:access_token"`
	RefreshToken string    `gorm:"column:refresh_token"`
	TokenExpiry  time.Time `gorm:"column:token_expiry"`

	// Platform-specific resource identifiers
	PageID     string `gorm:"column:page_id"`
	ChannelID  string `gorm:"column:channel_id"`
	LocationID string `gorm:"column:location_id"`
	PhoneID    string `gorm:"column:phone_id"`

	// Sync statistics, updated exactly once per sync run
	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`
	TotalSynced  int64      `gorm:"column:total_synced;default:0"`
	FailureCount int        `gorm:"column:failure_count;default:0"`
	LastError    string     `gorm:"column:last_error"`

	Status ConnectionStatus `gorm:"column:status;not null;default:connected"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the PlatformConnection model
func (PlatformConnection) TableName() string {
	return "platform_connections"
}

// TokenExpiresWithin reports whether the access token expires inside the window.
func (c *PlatformConnection) TokenExpiresWithin(window time.Duration) bool {
	return !c.TokenExpiry.IsZero() && time.Until(c.TokenExpiry) < window
}
