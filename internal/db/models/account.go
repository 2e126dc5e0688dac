package models

import (
	"encoding/json"
	"time"
)

// SocialAccount is a third-party identity linked to a local user.
// Rows are owned by the social login flow; this module only reads them.
type SocialAccount struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Provider  string    `gorm:"uniqueIndex:idx_account_provider_uid;size:64;not null" json:"provider"` // e.g., "google", "microsoft"
	UID       string    `gorm:"uniqueIndex:idx_account_provider_uid;size:191;not null" json:"uid"`
	ExtraData string    `gorm:"type:text" json:"-"` // JSON profile returned by the provider
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tokens []SocialToken `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

// Extra returns a string value from the stored provider profile, or "".
func (a *SocialAccount) Extra(key string) string {
	if a.ExtraData == "" {
		return ""
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(a.ExtraData), &data); err != nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// SetExtra replaces the stored provider profile.
func (a *SocialAccount) SetExtra(data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	a.ExtraData = string(b)
	return nil
}

// SocialToken stores the OAuth token pair issued for a SocialAccount.
// TokenSecret carries the refresh token.
type SocialToken struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AccountID   uint       `gorm:"index;not null" json:"account_id"`
	AppID       uint       `gorm:"index" json:"app_id"`
	Token       string     `gorm:"type:text" json:"-"`
	TokenSecret string     `gorm:"type:text" json:"-"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// SocialApp holds the OAuth client registered for a provider.
type SocialApp struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Provider string `gorm:"uniqueIndex;size:64;not null" json:"provider"`
	Name     string `json:"name"`
	ClientID string `json:"client_id"`
	Secret   string `json:"-"`
}
