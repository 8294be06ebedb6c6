package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"
)

func TestLogin(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, "testuser", "password123")

	rr := app.do("POST", "/api/auth/login", "", Credentials{Username: "testuser", Password: "password123"})
	if status := rr.Code; status != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	var resp JwtResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	identity, err := app.tokens.Verify(resp.AccessToken)
	if err != nil {
		t.Fatalf("Issued token does not verify: %v", err)
	}
	if identity.UserID != user.ID || identity.Username != "testuser" {
		t.Errorf("Unexpected identity: %+v", identity)
	}
}

func TestLoginIgnoresUserNameCase(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, "testuser", "password123")

	rr := app.do("POST", "/api/auth/login", "", Credentials{Username: "TestUser", Password: "password123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var resp JwtResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	identity, err := app.tokens.Verify(resp.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if identity.UserID != user.ID || identity.Username != "testuser" {
		t.Errorf("Expected the registered identity, got %+v", identity)
	}
}

func TestLoginRejected(t *testing.T) {
	app := newTestApp(t)
	app.createUser(t, "testuser", "password123")

	wrongPassword := app.do("POST", "/api/auth/login", "", Credentials{Username: "testuser", Password: "password124"})
	unknownUser := app.do("POST", "/api/auth/login", "", Credentials{Username: "nobody", Password: "password123"})

	for _, rr := range []int{wrongPassword.Code, unknownUser.Code} {
		if rr != http.StatusUnauthorized {
			t.Errorf("handler returned wrong status code: got %v want %v", rr, http.StatusUnauthorized)
		}
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Errorf("Responses differ: %q vs %q", wrongPassword.Body.String(), unknownUser.Body.String())
	}
	if got := strings.TrimSpace(unknownUser.Body.String()); got != "Incorrect username or password" {
		t.Errorf("Unexpected body: %q", got)
	}
}

func TestLoginMalformedBody(t *testing.T) {
	app := newTestApp(t)

	rr := app.do("POST", "/api/auth/login", "", "not an object")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}

func TestGetPublicKey(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, "testuser", "password123")

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"Existing User", "/api/auth/" + strconv.Itoa(user.ID), http.StatusOK, "testuser-public-key"},
		{"Unknown User", "/api/auth/-999", http.StatusNotFound, "User id: -999 not found."},
		{"Overflowing Id", "/api/auth/99999999999999999999", http.StatusNotFound, "User id: 99999999999999999999 not found."},
		{"Non Numeric Id", "/api/auth/abc", http.StatusNotFound, "404 page not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do("GET", tt.path, "", nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rr.Body.String()); got != tt.wantBody {
				t.Errorf("Expected body %q, got %q", tt.wantBody, got)
			}
		})
	}
}
