package handler

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/repository"
)

type ProfileHandler struct {
	profiles ProfileStore
}

func NewProfileHandler(profiles ProfileStore) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

func (h *ProfileHandler) writeResult(w http.ResponseWriter, op string, p *model.Profile, err error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "profile error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	p, err := h.profiles.GetByID(r.Context(), userID)
	h.writeResult(w, "profile me", p, err)
}

// Complete — POST /api/profiles/me: имя и тип пользователя после первого входа.
func (h *ProfileHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var in model.ProfileInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.FullName = strings.TrimSpace(in.FullName)
	if in.UserType == "" {
		in.UserType = model.RoleBuyer
	}
	if in.FullName == "" || (in.UserType != model.RoleBuyer && in.UserType != model.RoleSeller) {
		writeError(w, http.StatusUnprocessableEntity, "full_name and user_type (buyer|seller) required")
		return
	}
	p, err := h.profiles.Complete(r.Context(), userID, in)
	h.writeResult(w, "profile complete", p, err)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var in model.ProfileUpdate
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.FullName != nil && strings.TrimSpace(*in.FullName) == "" {
		writeError(w, http.StatusUnprocessableEntity, "full_name must not be empty")
		return
	}
	p, err := h.profiles.Update(r.Context(), userID, in)
	h.writeResult(w, "profile update", p, err)
}

func (h *ProfileHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var in model.LocationInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if math.Abs(in.Latitude) > 90 || math.Abs(in.Longitude) > 180 {
		writeError(w, http.StatusUnprocessableEntity, "invalid coordinates")
		return
	}
	p, err := h.profiles.UpdateLocation(r.Context(), userID, in)
	h.writeResult(w, "profile location", p, err)
}
