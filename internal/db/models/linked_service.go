package models

import "time"

// LinkedService connects a local user to one of their social accounts.
// There is at most one LinkedService per SocialAccount.
type LinkedService struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	AccountID uint      `gorm:"uniqueIndex;not null" json:"account_id"`
	CreatedAt time.Time `json:"inserted"`
	UpdatedAt time.Time `json:"updated"`

	User    User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Account SocialAccount `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"account"`
}
