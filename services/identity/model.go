package identity

import "time"

// Profile is the public display information of a user. Unknown users resolve to
// a Profile carrying only the UserID.
type Profile struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Verified    bool   `json:"verified"`
}

// UserProfile is the identity service's profile table, read only from here.
type UserProfile struct {
	UserID      string    `gorm:"column:user_id;primaryKey;type:varchar(64)"`
	Username    string    `gorm:"column:username;type:varchar(64)"`
	DisplayName string    `gorm:"column:display_name;type:varchar(128)"`
	AvatarURL   string    `gorm:"column:avatar_url;type:text"`
	Verified    bool      `gorm:"column:verified"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}

func (u *UserProfile) toProfile() Profile {
	return Profile{
		UserID:      u.UserID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Verified:    u.Verified,
	}
}
