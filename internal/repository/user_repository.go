package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

// principalTables maps a principal kind to its table.  Owners and clients
// are disjoint; the same id in both tables names two different people.
var principalTables = map[string]string{
	model.RoleOwner:  "gym_owners",
	model.RoleClient: "gym_clients",
}

// UserRepo is the identity store for owners and clients.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func tableFor(role string) (string, error) {
	t, ok := principalTables[role]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return t, nil
}

// Create inserts a principal of the given role.  Username is checked
// before email so callers get the same message order as before.  The
// unique indexes remain the final arbiter under concurrent signups.
func (r *UserRepo) Create(ctx context.Context, role string, p *model.Principal) error {
	table, err := tableFor(role)
	if err != nil {
		return err
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Username = strings.TrimSpace(p.Username)

	var exists bool
	if err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM "+table+" WHERE username=?)", p.Username).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrUsernameExists
	}
	if err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM "+table+" WHERE email=?)", p.Email).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrEmailExists
	}

	p.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO "+table+" (username, email, password_hash, created_at) VALUES (?,?,?,?)",
		p.Username, p.Email, p.PasswordHash, p.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			if strings.Contains(err.Error(), "email") {
				return ErrEmailExists
			}
			return ErrUsernameExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.Role = role
	return nil
}

// FindByUsername fetches a principal of the given role by username.
func (r *UserRepo) FindByUsername(ctx context.Context, role, username string) (*model.Principal, error) {
	table, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	return r.scanOne(ctx, role,
		"SELECT id,username,email,password_hash,created_at FROM "+table+" WHERE username=? LIMIT 1",
		strings.TrimSpace(username))
}

// FindByID fetches a principal of the given role by id.  A deleted
// principal yields ErrPrincipalNotFound even if its token is still valid.
func (r *UserRepo) FindByID(ctx context.Context, role string, id uint64) (*model.Principal, error) {
	table, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	return r.scanOne(ctx, role,
		"SELECT id,username,email,password_hash,created_at FROM "+table+" WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) scanOne(ctx context.Context, role, q string, arg any) (*model.Principal, error) {
	var p model.Principal
	err := r.DB.QueryRowContext(ctx, q, arg).Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}
	p.Role = role
	return &p, nil
}
