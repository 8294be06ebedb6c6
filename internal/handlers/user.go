package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pliu/securemsg/internal/auth"
	"github.com/pliu/securemsg/internal/models"
	"github.com/pliu/securemsg/internal/store"
)

const usernameTaken = "Username already exists."

type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	PublicKey string `json:"publicKey"`
}

type UserHandler struct {
	Store store.Store
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.Store.GetUserByUsername(r.Context(), req.Username); err == nil {
		http.Error(w, usernameTaken, http.StatusConflict)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("Error checking username %q: %v", req.Username, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if errs := auth.ValidateRegistration(req.Username, req.Password); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: hashedPassword,
		PublicKey:    req.PublicKey,
	}

	// A concurrent registration can still win the race for the name.
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			http.Error(w, usernameTaken, http.StatusConflict)
			return
		}
		log.Printf("Error creating user %q: %v", req.Username, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, users)
}
