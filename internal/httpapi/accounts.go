package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PetoAdam/homenavi/readings-service/internal/auth"
	"github.com/PetoAdam/homenavi/readings-service/internal/store"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
)

const defaultInactiveDays = 30

type loginRequest struct {
	Username string `json:"userName"`
	Password string `json:"password"`
}

// loginResponse is the only place the credential is ever returned.
type loginResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"userName"`
	Role     string    `json:"userRole"`
	APIKey   string    `json:"apiKey"`
}

type meResponse struct {
	Username string `json:"userName"`
	Role     string `json:"userRole"`
}

type createdAccount struct {
	store.Account
	APIKey string `json:"apiKey"`
}

type replaceAccountRequest struct {
	store.NewAccount
	Version int64 `json:"version"`
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperrors.InvalidValue("invalid id", err)
	}
	return id, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.repo.Login(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.gate.Touch(acc)
	writeJSON(w, http.StatusOK, loginResponse{ID: acc.ID, Username: acc.Username, Role: acc.Role, APIKey: acc.Credential})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acc, ok := auth.AccountFrom(r.Context())
	if !ok {
		writeError(w, r, apperrors.MissingCredential("missing credential"))
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Username: acc.Username, Role: acc.Role})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.repo.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req store.NewAccount
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.repo.CreateAccount(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdAccount{Account: *acc, APIKey: acc.Credential})
}

func (s *Server) handleCreateAccounts(w http.ResponseWriter, r *http.Request) {
	var req []store.NewAccount
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	accs, err := s.repo.CreateAccounts(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]createdAccount, 0, len(accs))
	for _, acc := range accs {
		out = append(out, createdAccount{Account: acc, APIKey: acc.Credential})
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleReplaceAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req replaceAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.repo.ReplaceAccount(r.Context(), id, req.NewAccount, req.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handlePatchAccounts(w http.ResponseWriter, r *http.Request) {
	var req patchRequest[store.AccountCriteria]
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.repo.PatchAccounts(r.Context(), req.PropertyName, req.PropertyValue, req.Filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordPatch(r, "accounts", res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteInactive(w http.ResponseWriter, r *http.Request) {
	days := defaultInactiveDays
	if v := strings.TrimSpace(r.URL.Query().Get("days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, apperrors.InvalidValue("days must be a non-negative integer", err))
			return
		}
		days = n
	}
	n, err := s.repo.DeleteInactive(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.repo.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

