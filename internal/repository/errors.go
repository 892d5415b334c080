// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and services to distinguish between failure scenarios
// without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// Not-found sentinels.  Handlers translate these into HTTP 404.
var (
	ErrPrincipalNotFound = errors.New("user not found")
	ErrGymNotFound       = errors.New("gym not found")
	ErrMachineNotFound   = errors.New("machine not found")
	ErrQRTokenNotFound   = errors.New("qr code not found")
	ErrBookmarkNotFound  = errors.New("bookmark not found")
)

// Uniqueness sentinels.  Handlers translate these into HTTP 400.
var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
	ErrGymExists      = errors.New("owner already has a gym")
	ErrBookmarkExists = errors.New("machine already bookmarked")
	ErrQRTokenExists  = errors.New("qr code already exists for this machine")
)

// ErrUnknownRole is returned when a principal kind has no backing table.
var ErrUnknownRole = errors.New("unknown principal role")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a MySQL unique constraint violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
