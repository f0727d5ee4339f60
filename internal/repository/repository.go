package repository

import "gorm.io/gorm"

// Repository 所有 Repository 的聚合入口
type Repository struct {
	User         UserRepository
	Organization OrganizationRepository
	Project      ProjectRepository
	TimeEntry    TimeEntryRepository
	Pause        PauseRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		User:         NewUserRepo(db),
		Organization: NewOrganizationRepo(db),
		Project:      NewProjectRepo(db),
		TimeEntry:    NewTimeEntryRepo(db),
		Pause:        NewPauseRepo(db),
	}
}
