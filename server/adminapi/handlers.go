package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/nextmail/mailbridge/consts"
	"github.com/nextmail/mailbridge/directory"
	"github.com/nextmail/mailbridge/logger"
	"github.com/nextmail/mailbridge/mirror"
	"github.com/nextmail/mailbridge/pkg/metrics"
)

// Request types

type UpdateServerRequest struct {
	Endpoint string `json:"endpoint"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type PasswordChangedRequest struct {
	UID          string  `json:"uid"`
	DisplayName  string  `json:"displayName"`
	Password     string  `json:"password,omitempty"`
	PasswordHash string  `json:"passwordHash,omitempty"`
	Email        *string `json:"email"`
}

func pathCID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["cid"], 10, 64)
}

// Server configuration handlers

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListConfigs(r.Context())
	if err != nil {
		logger.Error("error listing servers", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error listing servers")
		return
	}

	summaries := make([]mirror.ServerSummary, 0, len(configs))
	for _, cfg := range configs {
		summaries = append(summaries, cfg.Summary())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"servers": summaries})
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.CreateConfig(r.Context())
	if err != nil {
		logger.Error("error creating server", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error creating server")
		return
	}
	s.writeJSON(w, http.StatusCreated, cfg.Summary())
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid server id")
		return
	}

	cfg, err := s.store.FindConfig(r.Context(), cid)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		logger.Error("error finding server", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error finding server")
		return
	}
	s.writeJSON(w, http.StatusOK, cfg.Summary())
}

func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid server id")
		return
	}

	defer r.Body.Close()
	var req UpdateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	cfg, err := s.store.FindConfig(r.Context(), cid)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		logger.Error("error finding server", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error finding server")
		return
	}

	// Empty password keeps the stored secret; endpoint and username always
	// replace the prior values.
	updated, err := s.store.UpdateConfig(r.Context(), cfg.UpdateCredential(req.Endpoint, req.Username, req.Password))
	if err != nil {
		switch {
		case errors.Is(err, consts.ErrInvalidEndpoint):
			s.writeError(w, http.StatusBadRequest, "Endpoint must match scheme://host[:port]/api")
		case errors.Is(err, consts.ErrDBNotFound):
			s.writeError(w, http.StatusNotFound, "Server not found")
		default:
			logger.Error("error updating server", "cid", cid, "error", err)
			s.writeError(w, http.StatusInternalServerError, "Error updating server")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, updated.Summary())
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid server id")
		return
	}

	cfg, err := s.store.FindConfig(r.Context(), cid)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		logger.Error("error finding server", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error finding server")
		return
	}

	if err := s.store.DeleteConfig(r.Context(), cid); err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		logger.Error("error deleting server", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error deleting server")
		return
	}
	s.writeJSON(w, http.StatusOK, cfg.Summary())
}

func (s *Server) handleProbeServer(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid server id")
		return
	}

	cfg, err := s.store.FindConfig(r.Context(), cid)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		logger.Error("error finding server", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error finding server")
		return
	}

	health := s.checker.CheckHealth(r.Context(), *cfg)
	updated, err := s.store.RefreshConfigHealth(r.Context(), cid, health, time.Now().Add(s.healthTTL))
	if err != nil {
		logger.Error("error persisting health probe", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error persisting health probe")
		return
	}

	recordServerHealth(cid, health)
	logger.Info("health probe completed", "cid", cid, "health", health)
	s.writeJSON(w, http.StatusOK, updated.Summary())
}

// recordServerHealth flips the per-server health gauge to the probed state.
func recordServerHealth(cid int64, health mirror.Health) {
	states := []mirror.Health{
		mirror.HealthSuccess,
		mirror.HealthUnauthorized,
		mirror.HealthBadServer,
		mirror.HealthBadNetwork,
		mirror.HealthInvalid,
	}
	cidLabel := strconv.FormatInt(cid, 10)
	for _, state := range states {
		value := 0.0
		if state == health {
			value = 1.0
		}
		metrics.ServerHealth.WithLabelValues(cidLabel, string(state)).Set(value)
	}
}

// User provisioning handlers

// userSummary joins an account with its primary email, mapping an absent
// primary to a null email rather than an error.
func (s *Server) userSummary(r *http.Request, account mirror.Account) (mirror.UserSummary, error) {
	primary, err := s.store.FindPrimaryEmail(r.Context(), account.ServerID, account.UserID)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			return account.Summary(nil), nil
		}
		return mirror.UserSummary{}, err
	}
	return account.Summary(primary), nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid server id")
		return
	}

	if _, err := s.store.FindConfig(r.Context(), cid); err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		logger.Error("error finding server", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error finding server")
		return
	}

	accounts, err := s.store.ListAccounts(r.Context(), cid)
	if err != nil {
		logger.Error("error listing users", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error listing users")
		return
	}

	users := make([]mirror.UserSummary, 0, len(accounts))
	for _, account := range accounts {
		summary, err := s.userSummary(r, account)
		if err != nil {
			logger.Error("error resolving primary email", "cid", cid, "uid", account.UserID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "Error listing users")
			return
		}
		users = append(users, summary)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid server id")
		return
	}
	uid := mux.Vars(r)["uid"]

	account, err := s.store.FindAccount(r.Context(), cid, uid)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "User not found on this server")
			return
		}
		logger.Error("error finding user", "cid", cid, "uid", uid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error finding user")
		return
	}

	summary, err := s.userSummary(r, *account)
	if err != nil {
		logger.Error("error resolving primary email", "cid", cid, "uid", uid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error finding user")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleProvisionUser(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid server id")
		return
	}
	uid := mux.Vars(r)["uid"]

	if _, err := s.store.FindConfig(r.Context(), cid); err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		logger.Error("error finding server", "cid", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error finding server")
		return
	}

	user, err := s.provider.GetUser(r.Context(), uid)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			s.writeError(w, http.StatusNotFound, "User not found in directory")
			return
		}
		logger.Error("error resolving directory user", "uid", uid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error resolving directory user")
		return
	}

	passwordHash, err := s.provider.PasswordHash(r.Context(), uid)
	if err != nil {
		logger.Error("error deriving password hash", "uid", uid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error resolving directory user")
		return
	}

	account, err := s.store.CreateIndividualAccount(r.Context(), cid, user.UID, user.DisplayName, passwordHash)
	if err != nil {
		if errors.Is(err, consts.ErrDBUniqueViolation) {
			metrics.ProvisioningOpsTotal.WithLabelValues("provision", "conflict").Inc()
			s.writeError(w, http.StatusConflict, "User already provisioned on this server")
			return
		}
		metrics.ProvisioningOpsTotal.WithLabelValues("provision", "error").Inc()
		logger.Error("error provisioning user", "cid", cid, "uid", uid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error provisioning user")
		return
	}

	var primary *mirror.Email
	if user.Email != nil {
		primary, err = s.store.SetPrimaryEmail(r.Context(), cid, user.UID, *user.Email)
		if err != nil {
			metrics.ProvisioningOpsTotal.WithLabelValues("provision", "error").Inc()
			logger.Error("error setting primary email", "cid", cid, "uid", uid, "error", err)
			s.writeError(w, http.StatusInternalServerError, "Error provisioning user")
			return
		}
	}

	metrics.ProvisioningOpsTotal.WithLabelValues("provision", "success").Inc()
	logger.Info("user provisioned", "cid", cid, "uid", user.UID)
	s.writeJSON(w, http.StatusCreated, account.Summary(primary))
}

func (s *Server) handleDeprovisionUser(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid server id")
		return
	}
	uid := mux.Vars(r)["uid"]

	if err := s.store.DeleteAccount(r.Context(), cid, uid); err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			s.writeError(w, http.StatusNotFound, "User not found on this server")
			return
		}
		metrics.ProvisioningOpsTotal.WithLabelValues("deprovision", "error").Inc()
		logger.Error("error deprovisioning user", "cid", cid, "uid", uid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error deprovisioning user")
		return
	}

	metrics.ProvisioningOpsTotal.WithLabelValues("deprovision", "success").Inc()
	logger.Info("user deprovisioned", "cid", cid, "uid", uid)
	w.WriteHeader(http.StatusNoContent)
}

// Directory event webhook

func (s *Server) handlePasswordChanged(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req PasswordChangedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.UID == "" {
		s.writeError(w, http.StatusBadRequest, "uid is required")
		return
	}
	if req.Password != "" && req.PasswordHash != "" {
		s.writeError(w, http.StatusBadRequest, "Cannot specify both password and passwordHash")
		return
	}

	passwordHash := req.PasswordHash
	if passwordHash == "" && req.Password != "" {
		var err error
		passwordHash, err = directory.HashPassword(req.Password)
		if err != nil {
			logger.Error("error hashing event password", "uid", req.UID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "Error processing event")
			return
		}
	}

	event := directory.PasswordUpdatedEvent{
		UID:          req.UID,
		DisplayName:  req.DisplayName,
		PasswordHash: passwordHash,
		Email:        req.Email,
	}
	if err := s.events.HandlePasswordUpdated(r.Context(), event); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Error processing event")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}
