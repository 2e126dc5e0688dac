package models

import "time"

// User is a local site user owning zero or more linked services.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"index;size:191" json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Accounts []SocialAccount `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
