package model

// 组织内角色
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Organization 组织表，对应 organizations（租户边界）
type Organization struct {
	OrganizationID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"organization_id"`
	Name           string `gorm:"type:varchar(100);not null"                     json:"name"`
	Slug           string `gorm:"type:varchar(100);not null"                     json:"slug"`
	OwnerID        string `gorm:"type:uuid;not null"                             json:"owner_id"`
	BaseModel
}

// TableName 指定表名
func (Organization) TableName() string { return "organizations" }

// OrganizationMember 组织成员表，对应 organization_members
type OrganizationMember struct {
	MemberID       string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"member_id"`
	OrganizationID string `gorm:"type:uuid;not null"                             json:"organization_id"`
	UserID         string `gorm:"type:uuid;not null"                             json:"user_id"`
	Role           string `gorm:"type:varchar(20);not null;default:'member'"     json:"role"` // owner | admin | member
	BaseModel

	// 关联
	Organization *Organization `gorm:"foreignKey:OrganizationID;references:OrganizationID" json:"organization,omitempty"`
}

// TableName 指定表名
func (OrganizationMember) TableName() string { return "organization_members" }

// IsManagerRole 是否拥有管理（财务可见）权限
func IsManagerRole(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}
