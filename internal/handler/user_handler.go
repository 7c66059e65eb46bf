package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/pkg/validator"
)

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := validator.ValidateUserRequest(req, true); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	user, err := h.users.CreateUser(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := h.users.ListUsers(r.Context(), actor(r), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) GetUserByFullName(w http.ResponseWriter, r *http.Request) {
	fullName := r.URL.Query().Get("fullname")
	if fullName == "" {
		writeError(w, http.StatusBadRequest, "fullname is required")
		return
	}

	user, err := h.users.GetUserByFullName(r.Context(), actor(r), fullName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := int64Var(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.users.GetUser(r.Context(), actor(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := int64Var(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	var req models.UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := validator.ValidateUserRequest(req, false); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	user, err := h.users.UpdateUser(r.Context(), actor(r), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := int64Var(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if err := h.users.DeleteUser(r.Context(), actor(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
