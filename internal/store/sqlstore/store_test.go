package sqlstore

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pliu/securemsg/internal/models"
)

var testStore *SQLStore

func SetupTestDB(t *testing.T) {
	var err error
	testStore, err = New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
}

func TeardownTestDB() {
	testStore.db.Close()
}

func createTestUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, PasswordHash: "hash", PublicKey: username + "-key"}
	if err := testStore.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func TestWithSQLiteForeignKeys(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ":memory:?_foreign_keys=1"},
		{"file:test.db?cache=shared", "file:test.db?cache=shared&_foreign_keys=1"},
		{"test.db?_fk=1", "test.db?_fk=1"},
	}

	for _, tt := range tests {
		if got := withSQLiteForeignKeys(tt.dsn); got != tt.want {
			t.Errorf("withSQLiteForeignKeys(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driverName: "postgres"}
	if got := pg.rebind("SELECT 1 WHERE a = ? AND b = ?"); got != "SELECT 1 WHERE a = $1 AND b = $2" {
		t.Errorf("Unexpected postgres rebind: %s", got)
	}

	lite := &SQLStore{driverName: "sqlite3"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("Unexpected sqlite rebind: %s", got)
	}
}
