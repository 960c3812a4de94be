package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Connection is a linked POS account for one user. Credentials hold the
// decrypted bearer token and the remote account identifier.
type Connection struct {
	ID          string            `json:"id" gorm:"type:uuid;primary_key"`
	UserID      string            `json:"user_id" gorm:"not null;index"`
	Name        string            `json:"name" gorm:"not null"`
	Status      ConnectionStatus  `json:"status" gorm:"default:ACTIVE"`
	Config      datatypes.JSONMap `json:"config"`
	Credentials datatypes.JSONMap `json:"credentials"`
	LastSync    *time.Time        `json:"last_sync"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "ACTIVE"
	ConnectionStatusInactive ConnectionStatus = "INACTIVE"
	ConnectionStatusError    ConnectionStatus = "ERROR"
)

func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// AccessToken returns the bearer credential stored for this connection.
func (c *Connection) AccessToken() string {
	if c.Credentials == nil {
		return ""
	}
	token, _ := c.Credentials["access_token"].(string)
	return token
}

// AccountID returns the remote POS account identifier.
func (c *Connection) AccountID() string {
	if c.Config == nil {
		return ""
	}
	id, _ := c.Config["account_id"].(string)
	return id
}

// BaseURL returns the remote POS API base URL, if configured.
func (c *Connection) BaseURL() string {
	if c.Config == nil {
		return ""
	}
	u, _ := c.Config["base_url"].(string)
	return u
}
