package enums

// ActorRole is the caller role carried in access tokens.
type ActorRole string

const (
	ActorRoleCustomer    ActorRole = "customer"
	ActorRoleSeller      ActorRole = "seller"
	ActorRoleAdmin       ActorRole = "admin"
	ActorRoleSystemAdmin ActorRole = "system_admin"
	ActorRoleSystem      ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleSeller,
	ActorRoleAdmin,
	ActorRoleSystemAdmin,
	ActorRoleSystem,
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the role may perform finance administration.
func (r ActorRole) IsPrivileged() bool {
	return r == ActorRoleAdmin || r == ActorRoleSystemAdmin
}

// ActivityLogType classifies audit entries.
type ActivityLogType string

const (
	ActivityLogSystemEvent ActivityLogType = "SYSTEM_EVENT"
	ActivityLogUserAction  ActivityLogType = "USER_ACTION"
	ActivityLogAdminAction ActivityLogType = "ADMIN_ACTION"
)
