package models

// Actor is the authenticated user an operation runs on behalf of.
type Actor struct {
	TenantId string   `json:"tenant_id"`
	UserId   string   `json:"user_id"`
	UserName string   `json:"user_name"`
	Role     UserRole `json:"role"`
}

func (a Actor) IsElevated() bool {
	return a.Role.IsElevated()
}

// DisplayName is what gets written into collected_by, sent_by and similar columns.
func (a Actor) DisplayName() string {
	if a.UserName != "" {
		return a.UserName
	}
	return a.UserId
}
