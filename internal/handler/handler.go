package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/Dan9191/bank-cards/pkg/validator"
)

type Handler struct {
	cards     *service.CardService
	transfers *service.TransferService
	users     *service.UserService
	log       *logrus.Logger
}

func NewHandler(cards *service.CardService, transfers *service.TransferService, users *service.UserService, log *logrus.Logger) *Handler {
	return &Handler{cards: cards, transfers: transfers, users: users, log: log}
}

// Routes builds the API router. auth guards every route except login and health.
func (h *Handler) Routes(auth mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)

	// Protected routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)

	api.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	api.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/by-fullname", h.GetUserByFullName).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}", h.GetUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}", h.UpdateUser).Methods(http.MethodPut)
	api.HandleFunc("/users/{userId}", h.DeleteUser).Methods(http.MethodDelete)

	api.HandleFunc("/cards/transfer", h.Transfer).Methods(http.MethodPost)
	api.HandleFunc("/cards/user/{userId}", h.CreateCard).Methods(http.MethodPost)
	api.HandleFunc("/cards/user/{userId}", h.ListUserCards).Methods(http.MethodGet)
	api.HandleFunc("/cards", h.ListAllCards).Methods(http.MethodGet)
	api.HandleFunc("/cards/{cardId}", h.GetCard).Methods(http.MethodGet)
	api.HandleFunc("/cards/{cardId}/status", h.UpdateCardStatus).Methods(http.MethodPut)
	api.HandleFunc("/cards/{cardId}", h.DeleteCard).Methods(http.MethodDelete)
	api.HandleFunc("/cards/{cardId}/transfers", h.ListCardTransfers).Methods(http.MethodGet)

	return r
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := validator.ValidateLogin(input.Username, input.Password); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	token, err := h.users.Login(r.Context(), input.Username, input.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func actor(r *http.Request) models.Actor {
	a, _ := middleware.ActorFromContext(r.Context())
	return a
}

func pageRequest(r *http.Request) (models.PageRequest, error) {
	q := r.URL.Query()
	var page models.PageRequest
	var err error
	if v := q.Get("page"); v != "" {
		if page.Page, err = strconv.Atoi(v); err != nil || page.Page < 0 {
			return page, errors.New("page must be a non-negative integer")
		}
		if page.Page > models.MaxPage {
			return page, errors.New("page is out of range")
		}
	}
	if v := q.Get("size"); v != "" {
		if page.Size, err = strconv.Atoi(v); err != nil || page.Size < 1 {
			return page, errors.New("size must be a positive integer")
		}
	}
	page.Sort = q.Get("sort")
	return page.Normalize(), nil
}

func int64Var(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// fail maps a service error to its HTTP status
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrDuplicateUsername), errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrInvalidCard), errors.Is(err, service.ErrSameCard),
		errors.Is(err, service.ErrInsufficientFunds), errors.Is(err, service.ErrInvalidPage):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("Request failed")
		writeError(w, status, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"message":    message,
		"statusCode": status,
	})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"message":    "Validation failed",
		"statusCode": http.StatusBadRequest,
		"fields":     errs,
	})
}
