package model

import "time"

// Roles carried in the "user_type" claim of a bearer token.  Owners and
// clients live in separate tables; a token for one kind never resolves to
// the other.
const (
	RoleOwner  = "owner"  // gym owner, manages a gym and its machines
	RoleClient = "client" // gym member, scans QR codes and bookmarks machines
	RoleEither = "either" // accepted by endpoints open to both kinds
)

// Principal is an authenticated identity, either an owner (`gym_owners`
// row) or a client (`gym_clients` row).  The two tables share the same
// shape so a single struct is used; Role records which table it came from.
//
// Fields:
//
//	ID           – primary key identifier within its table.
//	Username     – unique login name.
//	Email        – unique email address.
//	PasswordHash – bcrypt hash, never serialized.
//	Role         – RoleOwner or RoleClient.
//	CreatedAt    – timestamp of creation.
type Principal struct {
	ID           uint64    `json:"id"`         // gym_owners.id / gym_clients.id
	Username     string    `json:"username"`   // *.username
	Email        string    `json:"email"`      // *.email
	PasswordHash string    `json:"-"`          // *.password_hash
	Role         string    `json:"-"`          // derived from the table
	CreatedAt    time.Time `json:"created_at"` // *.created_at
}

// ValidRole reports whether r names a concrete principal kind.
func ValidRole(r string) bool {
	return r == RoleOwner || r == RoleClient
}
