package domain

import "github.com/crewpay/warden/pkg/idx"

// Role is the role/type tag carried by a principal. The set mirrors the
// account types the platform issues tokens for.
type Role string

const (
	RoleClientIndividual Role = "client-individual"
	RoleContractorEntity Role = "contractor-entity"
	RolePlatformAdmin    Role = "platform-admin"
)

// Valid reports whether r is one of the known role tags.
func (r Role) Valid() bool {
	switch r {
	case RoleClientIndividual, RoleContractorEntity, RolePlatformAdmin:
		return true
	}
	return false
}

// Principal is the authenticated identity a token is issued for. It is owned
// by the user-management service; the authority only references it.
type Principal struct {
	ID    idx.ID
	Email string
	Role  Role
}
