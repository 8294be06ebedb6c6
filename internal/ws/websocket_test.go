package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pliu/securemsg/internal/auth"
	"github.com/pliu/securemsg/internal/middleware"
	"github.com/pliu/securemsg/internal/models"
)

const testJWTKey = "integration-test-signing-key-0123456789"

type testServer struct {
	*testEnv
	server *httptest.Server
	tokens *auth.TokenIssuer
}

func newTestServer(t *testing.T, opts Options, usernames ...string) *testServer {
	t.Helper()
	env := newTestEnv(t, opts, usernames...)
	tokens, err := auth.NewTokenIssuer(testJWTKey, "securemsg", "securemsg-client", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token issuer: %v", err)
	}
	go env.hub.Run()

	handler := middleware.AuthMiddleware(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(env.hub, w, r)
	}))
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		env.hub.Shutdown(time.Second)
	})
	return &testServer{testEnv: env, server: server, tokens: tokens}
}

func (s *testServer) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(s.server.URL, "http")
	if token != "" {
		u += "?access_token=" + token
	}
	return u
}

// dial connects as username and consumes the handshake frame, after which
// the connection is registered with the hub.
func (s *testServer) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	token, err := s.tokens.Issue(s.users[username])
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(token), nil)
	if err != nil {
		t.Fatalf("Failed to connect as %s: %v", username, err)
	}
	t.Cleanup(func() { conn.Close() })

	var handshake Handshake
	readJSON(t, conn, &handshake)
	if handshake.Type != FrameHandshake || handshake.UserID != s.users[username].ID {
		t.Fatalf("Unexpected handshake: %+v", handshake)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
}

func TestWebSocketSendMessage(t *testing.T) {
	ts := newTestServer(t, Options{}, "alice", "bob")
	aliceConn := ts.dial(t, "alice")
	bobConn := ts.dial(t, "bob")
	bob := ts.users["bob"]

	err := aliceConn.WriteJSON(map[string]any{
		"type":         FrameInvocation,
		"invocationId": "1",
		"target":       MethodSendMessage,
		"arguments":    []any{bob.ID, "hello"},
	})
	if err != nil {
		t.Fatalf("Failed to write invocation: %v", err)
	}

	var completion struct {
		Type         string         `json:"type"`
		InvocationID string         `json:"invocationId"`
		Result       models.Message `json:"result"`
		Error        string         `json:"error"`
	}
	readJSON(t, aliceConn, &completion)
	if completion.Type != FrameCompletion || completion.InvocationID != "1" || completion.Error != "" {
		t.Fatalf("Unexpected completion: %+v", completion)
	}

	var push pushFrame
	readJSON(t, bobConn, &push)
	if push.Target != MethodReceiveMessage || len(push.Arguments) != 1 {
		t.Fatalf("Unexpected push: %+v", push)
	}
	got := push.Arguments[0]
	if got.ID != completion.Result.ID || got.SenderID != ts.users["alice"].ID || got.RecipientID != bob.ID || got.EncryptedContent != "hello" {
		t.Errorf("Pushed %+v, stored %+v", got, completion.Result)
	}
	if got.Timestamp.IsZero() {
		t.Error("Expected a server timestamp")
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	ts := newTestServer(t, Options{}, "alice")

	tests := []struct {
		name  string
		token string
	}{
		{"Missing Token", ""},
		{"Invalid Token", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(tt.token), nil)
			if err == nil {
				t.Fatal("Expected dial to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %v", resp)
			}
		})
	}
	if ts.hub.ConnectionCount() != 0 {
		t.Errorf("Expected no registered connections, got %d", ts.hub.ConnectionCount())
	}
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:4200"}}, "alice")
	token, err := ts.tokens.Issue(ts.users["alice"])
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(token), header)
	if err == nil {
		t.Fatal("Expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}

	header.Set("Origin", "http://localhost:4200")
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(token), header)
	if err != nil {
		t.Fatalf("Expected allowed origin to connect: %v", err)
	}
	conn.Close()
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	ts := newTestServer(t, Options{}, "alice")
	conn := ts.dial(t, "alice")
	alice := ts.users["alice"]

	if !ts.hub.IsOnline(alice.ID) {
		t.Fatal("Expected alice to be online")
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.IsOnline(alice.ID) {
		if time.Now().After(deadline) {
			t.Fatal("Connection was not unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
