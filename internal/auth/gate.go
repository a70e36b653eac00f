package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/readings-service/internal/store"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
	"github.com/PetoAdam/homenavi/readings-service/pkg/roles"
)

const DefaultHeader = "ApiKey"

// Both "unknown credential" and "role too low" use this message so callers
// cannot probe which keys exist.
const deniedMessage = "credential is not authorized for this resource"

type CredentialStore interface {
	AccountByCredential(ctx context.Context, credential string) (*store.Account, error)
}

type accountKeyType struct{}

var accountKey accountKeyType

// Gate resolves the credential header to an account and checks its role
// against the endpoint ceiling.
type Gate struct {
	store   CredentialStore
	toucher *Toucher
	header  string
	now     func() time.Time
}

func NewGate(credentials CredentialStore, toucher *Toucher, header string) *Gate {
	if header == "" {
		header = DefaultHeader
	}
	return &Gate{
		store:   credentials,
		toucher: toucher,
		header:  header,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (g *Gate) Header() string {
	return g.header
}

// NormalizeCredential trims whitespace and one layer of braces, as some
// clients send keys in the {uuid} form.
func NormalizeCredential(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	return strings.TrimSpace(s)
}

// Authenticate never retries and never caches; every call reads the store.
func (g *Gate) Authenticate(ctx context.Context, raw string, required roles.Role) (*store.Account, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.MissingCredential("missing " + g.header + " header")
	}
	acc, err := g.store.AccountByCredential(ctx, NormalizeCredential(raw))
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.Unauthorized(deniedMessage)
		}
		return nil, apperrors.StoreFailure("could not verify credential", err)
	}
	if !roles.SatisfiesName(acc.Role, required) {
		return nil, apperrors.Unauthorized(deniedMessage)
	}
	g.Touch(acc)
	return acc, nil
}

// Touch schedules a last-seen stamp for an account admitted by some other
// path than the credential header, such as a password login.
func (g *Gate) Touch(acc *store.Account) {
	if g.toucher == nil || acc == nil {
		return
	}
	g.toucher.Schedule(acc.ID, g.now())
}

// Require is the router middleware for endpoints with a role ceiling.
func (g *Gate) Require(required roles.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, err := g.Authenticate(r.Context(), r.Header.Get(g.header), required)
			if err != nil {
				if apperrors.KindOf(err) == apperrors.KindStoreFailure {
					slog.Error("credential lookup failed", "path", r.URL.Path, "error", err)
				}
				apperrors.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acc)))
		})
	}
}

func WithAccount(ctx context.Context, acc *store.Account) context.Context {
	return context.WithValue(ctx, accountKey, acc)
}

// AccountFrom returns the account the gate admitted.
func AccountFrom(ctx context.Context) (*store.Account, bool) {
	acc, ok := ctx.Value(accountKey).(*store.Account)
	return acc, ok && acc != nil
}
