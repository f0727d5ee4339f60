package model

// User 用户表，对应 users
type User struct {
	UserID       string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Email        string  `gorm:"type:varchar(255);not null"                     json:"email"`
	FullName     string  `gorm:"type:varchar(100);not null"                     json:"full_name"`
	AvatarURL    *string `gorm:"type:text"                                      json:"avatar_url,omitempty"`
	PasswordHash string  `gorm:"type:varchar(255);not null"                     json:"-"`
	BaseModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }
