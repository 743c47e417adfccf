package auth

import (
	"github.com/google/uuid"

	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
)

// Actor is the authenticated caller of a domain operation.
type Actor struct {
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	Role           enums.ActorRole
}

// SystemActor identifies automated callers (webhooks, cron jobs).
func SystemActor() Actor {
	return Actor{Role: enums.ActorRoleSystem}
}

// ActorFromClaims maps verified token claims to an Actor.
func ActorFromClaims(c *AccessTokenClaims) Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, OrganizationID: c.OrganizationID, Role: c.Role}
}

func (a Actor) IsSystem() bool {
	return a.Role == enums.ActorRoleSystem
}

func (a Actor) IsSystemAdmin() bool {
	return a.Role == enums.ActorRoleSystemAdmin
}

// IsPrivileged reports platform operators and automated callers.
func (a Actor) IsPrivileged() bool {
	return a.Role.IsPrivileged() || a.IsSystem()
}

// OwnsOrganization reports whether a seller acts for the given organization.
func (a Actor) OwnsOrganization(orgID *uuid.UUID) bool {
	if orgID == nil || a.OrganizationID == nil {
		return false
	}
	return *a.OrganizationID == *orgID
}

// UserIDPtr returns nil for automated callers.
func (a Actor) UserIDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// Ref converts the actor into the outbox envelope form.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:         a.UserID,
		OrganizationID: a.OrganizationID,
		Role:           string(a.Role),
	}
}
