package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/pkg/validator"
)

func cardID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["cardId"])
}

// CreateCard issues a card for the user in the path. The body is optional.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	ownerID, err := int64Var(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	var req models.CardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := validator.ValidateCardRequest(req); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	card, err := h.cards.CreateCard(r.Context(), actor(r), ownerID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (h *Handler) ListUserCards(w http.ResponseWriter, r *http.Request) {
	ownerID, err := int64Var(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cards, err := h.cards.ListUserCards(r.Context(), actor(r), ownerID, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) ListAllCards(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cards, err := h.cards.ListAllCards(r.Context(), actor(r), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}

	card, err := h.cards.GetCard(r.Context(), actor(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *Handler) UpdateCardStatus(w http.ResponseWriter, r *http.Request) {
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}
	status := models.CardStatus(r.URL.Query().Get("cardStatus"))

	card, err := h.cards.UpdateCardStatus(r.Context(), actor(r), id, status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}

	if err := h.cards.DeleteCard(r.Context(), actor(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transfer moves funds between two cards of the caller
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req models.TransferRequest
	var err error

	if req.FromCardID, err = uuid.Parse(q.Get("fromCardId")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fromCardId")
		return
	}
	if req.ToCardID, err = uuid.Parse(q.Get("toCardId")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid toCardId")
		return
	}
	if req.Amount, err = decimal.NewFromString(q.Get("amount")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	if v := q.Get("userId"); v != "" {
		if req.UserID, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid userId")
			return
		}
	}

	transfer, err := h.transfers.Transfer(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

func (h *Handler) ListCardTransfers(w http.ResponseWriter, r *http.Request) {
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid card id")
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	transfers, err := h.cards.ListCardTransfers(r.Context(), actor(r), id, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}
