package models

import (
	"fmt"
	"time"
)

// Access types group scopes by the capability they unlock.
const (
	AccessTypeDefault  = "default"
	AccessTypeCalendar = "calendar"
	AccessTypeFiles    = "files"
	AccessTypeYouTube  = "youtube"
	AccessTypeMail     = "mail"
)

// Scope is an OAuth permission a provider can grant.
// The combination of (Provider, Name) must be unique.
type Scope struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Provider     string `gorm:"uniqueIndex:idx_scope_provider_name;size:64;not null" json:"provider" yaml:"provider"`
	Name         string `gorm:"uniqueIndex:idx_scope_provider_name;size:255;not null" json:"name" yaml:"name"`
	Required     bool   `gorm:"default:false" json:"required" yaml:"required"`
	GrantsAccess bool   `gorm:"default:false" json:"grants_access" yaml:"grants_access"`
	AccessType   string `gorm:"size:64;default:'default'" json:"access_type" yaml:"access_type"`
}

func (s Scope) String() string {
	return fmt.Sprintf("%s: %s", s.Provider, s.Name)
}

// GrantedScope records that an account has been authorized for a scope.
// CreatedAt is the moment the grant was first observed.
type GrantedScope struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"uniqueIndex:idx_granted_account_scope;not null" json:"account_id"`
	ScopeID   uint      `gorm:"uniqueIndex:idx_granted_account_scope;not null" json:"scope_id"`
	CreatedAt time.Time `json:"inserted"`
	UpdatedAt time.Time `json:"updated"`

	Scope   Scope         `gorm:"constraint:OnDelete:CASCADE" json:"scope"`
	Account SocialAccount `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}
