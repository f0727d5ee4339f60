package model

import "time"

// PauseTypeBreak 暂停类型：休息
const PauseTypeBreak = "break"

// Pause 暂停记录表，对应 pauses（只追加，仅作审计）
type Pause struct {
	ID          string    `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TimeEntryID string    `gorm:"type:uuid;not null"                                       json:"time_entry_id"`
	StartTime   time.Time `gorm:"not null"                                                 json:"start_time"`
	Type        string    `gorm:"type:varchar(20);not null;default:'break'"                json:"type"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"                       json:"created_at"`
}

// TableName 指定表名
func (Pause) TableName() string { return "pauses" }
