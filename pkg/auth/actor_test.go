package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/tindahub/marketplace-backend/pkg/enums"
)

func TestActorPrivileges(t *testing.T) {
	assert.True(t, SystemActor().IsPrivileged())
	assert.True(t, Actor{Role: enums.ActorRoleAdmin}.IsPrivileged())
	assert.True(t, Actor{Role: enums.ActorRoleSystemAdmin}.IsSystemAdmin())
	assert.False(t, Actor{Role: enums.ActorRoleSeller}.IsPrivileged())
	assert.False(t, Actor{Role: enums.ActorRoleAdmin}.IsSystemAdmin())
}

func TestActorOwnsOrganization(t *testing.T) {
	org := uuid.New()
	other := uuid.New()
	seller := Actor{Role: enums.ActorRoleSeller, OrganizationID: &org}

	assert.True(t, seller.OwnsOrganization(&org))
	assert.False(t, seller.OwnsOrganization(&other))
	assert.False(t, seller.OwnsOrganization(nil))
	assert.False(t, Actor{Role: enums.ActorRoleCustomer}.OwnsOrganization(&org))
}

func TestActorRefAndUserPtr(t *testing.T) {
	assert.Nil(t, SystemActor().UserIDPtr())

	id := uuid.New()
	a := Actor{UserID: id, Role: enums.ActorRoleCustomer}
	assert.Equal(t, id, *a.UserIDPtr())
	assert.Equal(t, "customer", a.Ref().Role)
	assert.Equal(t, id, ActorFromClaims(&AccessTokenClaims{UserID: id, Role: enums.ActorRoleCustomer}).UserID)
}
