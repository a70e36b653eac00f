package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PetoAdam/homenavi/readings-service/internal/patch"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
	"github.com/PetoAdam/homenavi/readings-service/pkg/roles"
)

// NewAccount is the input for creating or replacing an account.
type NewAccount struct {
	Username string `json:"userName"`
	Password string `json:"password"`
	Role     string `json:"userRole"`
}

func (in NewAccount) validate() (roles.Role, error) {
	if in.Username == "" {
		return 0, apperrors.InvalidValue("userName is required", nil)
	}
	if in.Password == "" {
		return 0, apperrors.InvalidValue("password is required", nil)
	}
	role, err := roles.Parse(in.Role)
	if err != nil {
		return 0, apperrors.InvalidValue("userRole is not a known role", err)
	}
	return role, nil
}

func (r *Repo) newAccount(in NewAccount) (*Account, error) {
	role, err := in.validate()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, apperrors.StoreFailure("could not hash password", err)
	}
	now := r.now()
	return &Account{
		ID:           uuid.New(),
		Username:     in.Username,
		PasswordHash: string(hash),
		Role:         role.String(),
		CreatedAt:    now,
		LastSeenAt:   now,
		Credential:   uuid.NewString(),
		Version:      1,
	}, nil
}

func (r *Repo) usernameTaken(tx *gorm.DB, username string, except uuid.UUID) (bool, error) {
	q := tx.Model(&Account{}).Where("username = ?", username)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateAccount checks the name before inserting; the unique index catches
// a concurrent duplicate that slips past the check.
func (r *Repo) CreateAccount(ctx context.Context, in NewAccount) (*Account, error) {
	acc, err := r.newAccount(in)
	if err != nil {
		return nil, err
	}
	db := r.db.WithContext(ctx)
	taken, err := r.usernameTaken(db, acc.Username, uuid.Nil)
	if err != nil {
		return nil, apperrors.StoreFailure("could not check accounts", err)
	}
	if taken {
		return nil, apperrors.Conflict(fmt.Sprintf("user name %q is already taken", acc.Username))
	}
	if err := db.Create(acc).Error; err != nil {
		return nil, accountWriteError(err, acc.Username)
	}
	return acc, nil
}

// CreateAccounts inserts all accounts or none.
func (r *Repo) CreateAccounts(ctx context.Context, in []NewAccount) ([]Account, error) {
	accs := make([]Account, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, item := range in {
		if _, dup := seen[item.Username]; dup {
			return nil, apperrors.Conflict(fmt.Sprintf("user name %q appears more than once", item.Username))
		}
		seen[item.Username] = struct{}{}
		acc, err := r.newAccount(item)
		if err != nil {
			return nil, err
		}
		accs = append(accs, *acc)
	}
	if len(accs) == 0 {
		return accs, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, acc := range accs {
			taken, err := r.usernameTaken(tx, acc.Username, uuid.Nil)
			if err != nil {
				return apperrors.StoreFailure("could not check accounts", err)
			}
			if taken {
				return apperrors.Conflict(fmt.Sprintf("user name %q is already taken", acc.Username))
			}
		}
		if err := tx.Create(&accs).Error; err != nil {
			return accountWriteError(err, "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accs, nil
}

func accountWriteError(err error, username string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if username == "" {
			return apperrors.Conflict("user name is already taken")
		}
		return apperrors.Conflict(fmt.Sprintf("user name %q is already taken", username))
	}
	return apperrors.StoreFailure("could not write account", err)
}

func (r *Repo) firstAccount(ctx context.Context, notFound string, query any, args ...any) (*Account, error) {
	var acc Account
	err := r.db.WithContext(ctx).Where(query, args...).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(notFound)
	}
	if err != nil {
		return nil, apperrors.StoreFailure("could not load account", err)
	}
	return &acc, nil
}

func (r *Repo) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.firstAccount(ctx, "account not found", "id = ?", id)
}

// AccountByCredential resolves an API key. Unknown keys are NotFound.
func (r *Repo) AccountByCredential(ctx context.Context, credential string) (*Account, error) {
	if credential == "" {
		return nil, apperrors.NotFound("credential not found")
	}
	return r.firstAccount(ctx, "credential not found", "credential = ?", credential)
}

// Login verifies a user name and password. Both failures look the same.
func (r *Repo) Login(ctx context.Context, username, password string) (*Account, error) {
	acc, err := r.firstAccount(ctx, "account not found", "username = ?", username)
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return nil, apperrors.Unauthorized("invalid user name or password")
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthorized("invalid user name or password")
	}
	return acc, nil
}

// ReplaceAccount overwrites name, password and role. created_at,
// last_seen_at, the credential and the expiry are kept. A non-zero
// expectedVersion must match the stored one.
func (r *Repo) ReplaceAccount(ctx context.Context, id uuid.UUID, in NewAccount, expectedVersion int64) (*Account, error) {
	role, err := in.validate()
	if err != nil {
		return nil, err
	}
	existing, err := r.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && expectedVersion != existing.Version {
		return nil, apperrors.Conflict("account was modified concurrently")
	}
	db := r.db.WithContext(ctx)
	taken, err := r.usernameTaken(db, in.Username, id)
	if err != nil {
		return nil, apperrors.StoreFailure("could not check accounts", err)
	}
	if taken {
		return nil, apperrors.Conflict(fmt.Sprintf("user name %q is already taken", in.Username))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, apperrors.StoreFailure("could not hash password", err)
	}

	res := db.Model(&Account{}).
		Where("id = ? AND version = ?", id, existing.Version).
		Updates(map[string]any{
			"username":      in.Username,
			"password_hash": string(hash),
			"role":          role.String(),
			"version":       existing.Version + 1,
		})
	if res.Error != nil {
		return nil, accountWriteError(res.Error, in.Username)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.Conflict("account was modified concurrently")
	}
	return r.GetAccount(ctx, id)
}

func (r *Repo) PatchAccounts(ctx context.Context, property, value string, where AccountCriteria) (patch.Result, error) {
	return r.accounts.Patch(ctx, property, value, where.Predicate())
}

func (r *Repo) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&Account{}, "id = ?", id)
	if res.Error != nil {
		return apperrors.StoreFailure("could not delete account", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("account not found")
	}
	return nil
}

// DeleteInactive removes Student accounts not seen for the given number of
// days. Teachers and admins are never removed.
func (r *Repo) DeleteInactive(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, apperrors.InvalidValue("days must not be negative", nil)
	}
	cutoff := r.now().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "role"}, Value: roles.Student.String()}).
		Where(clause.Lte{Column: clause.Column{Name: "last_seen_at"}, Value: cutoff}).
		Delete(&Account{})
	if res.Error != nil {
		return 0, apperrors.StoreFailure("could not delete inactive accounts", res.Error)
	}
	return res.RowsAffected, nil
}

// Touch stamps last_seen_at without bumping the version.
func (r *Repo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	if at.IsZero() {
		at = r.now()
	}
	err := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).UpdateColumn("last_seen_at", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("touch account %s: %w", id, err)
	}
	return nil
}
