package models

import (
	"time"
)

// AgentRole controls what a team member can be routed
type AgentRole string

const (
	RoleAgent   AgentRole = "agent"
	RoleManager AgentRole = "manager"
	RoleAdmin   AgentRole = "admin"
)

// TeamAgent is an organization member interactions can be assigned to.
type TeamAgent struct {
	ID             string    `gorm:"primaryKey;column:id"`
	OrganizationID string    `gorm:"column:organization_id;not null;index"`
	Name           string    `gorm:"column:name"`
	Email          string    `gorm:"column:email"`
	Role           AgentRole `gorm:"column:role;not null;default:agent"`
	Active         bool      `gorm:"column:active;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the TeamAgent model
func (TeamAgent) TableName() string {
	return "team_agents"
}

// KnowledgeEntry is a supporting context document consumed read-only when
// drafting replies. Owned by the knowledge-base subsystem.
type KnowledgeEntry struct {
	ID             string    `gorm:"primaryKey;column:id"`
	OrganizationID string    `gorm:"column:organization_id;not null;index"`
	Title          string    `gorm:"column:title"`
	Content        string    `gorm:"column:content"`
	Weight         int       `gorm:"column:weight;default:0"`
	Active         bool      `gorm:"column:active;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the KnowledgeEntry model
func (KnowledgeEntry) TableName() string {
	return "knowledge_entries"
}
