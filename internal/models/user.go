package models

import "time"

// User is a row of the user directory. The directory is owned by the account
// service; this module only reads display fields from it.
type User struct {
	ID        int       `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Email     string    `json:"email" gorm:"type:text;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at;autoCreateTime"`
	Profile   *Profile  `json:"profile,omitempty" gorm:"foreignKey:UserID"`
}

type Profile struct {
	ID     int     `json:"-" gorm:"primaryKey"`
	UserID int     `json:"-" gorm:"uniqueIndex;not null"`
	Avatar *string `json:"avatar"`
	Bio    *string `json:"bio"`
}

// OnlineUser is one entry of a presence snapshot.
type OnlineUser struct {
	ID      int             `json:"id"`
	Name    string          `json:"name,omitempty"`
	Profile *ProfileSummary `json:"profile,omitempty"`
}

type ProfileSummary struct {
	Avatar *string `json:"avatar"`
	Bio    *string `json:"bio"`
}

// ToOnlineUser projects the display fields shown in presence snapshots.
func (u *User) ToOnlineUser() OnlineUser {
	ou := OnlineUser{ID: u.ID, Name: u.Name}
	if u.Profile != nil {
		ou.Profile = &ProfileSummary{Avatar: u.Profile.Avatar, Bio: u.Profile.Bio}
	}
	return ou
}
