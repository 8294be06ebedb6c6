package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pliu/securemsg/internal/auth"
	"github.com/pliu/securemsg/internal/models"
	"github.com/pliu/securemsg/internal/store"
)

const incorrectCredentials = "Incorrect username or password"

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type JwtResponse struct {
	AccessToken string `json:"accessToken"`
}

// TokenIssuer signs access tokens for verified users.
type TokenIssuer interface {
	Issue(user *models.User) (string, error)
}

type AuthHandler struct {
	Store  store.Store
	Tokens TokenIssuer
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Unknown user and wrong password get the same answer.
	user, err := h.Store.GetUserByUsername(r.Context(), creds.Username)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, incorrectCredentials, http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("Error loading user %q: %v", creds.Username, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if !auth.CheckPassword(creds.Password, user.PasswordHash) {
		http.Error(w, incorrectCredentials, http.StatusUnauthorized)
		return
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		log.Printf("Error issuing token for user %d: %v", user.ID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, JwtResponse{AccessToken: token})
}

// GetPublicKey returns the raw public key of a user.
func (h *AuthHandler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	// The route only matches integers; one that overflows int names no user.
	rawID := mux.Vars(r)["id"]
	id, err := strconv.Atoi(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("User id: %s not found.", rawID), http.StatusNotFound)
		return
	}

	user, err := h.Store.GetUserByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, fmt.Sprintf("User id: %d not found.", id), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error loading user %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(user.PublicKey))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
