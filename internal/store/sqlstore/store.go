package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"           // Postgres driver
	"github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pliu/securemsg/internal/models"
	"github.com/pliu/securemsg/internal/store"
)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

var _ store.Store = (*SQLStore)(nil)

func New(driverName, dataSourceName string) (*SQLStore, error) {
	if driverName == "sqlite3" {
		dataSourceName = withSQLiteForeignKeys(dataSourceName)
	}

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// A single connection keeps ":memory:" databases shared and
		// serializes writers the way sqlite wants anyway.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func withSQLiteForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=1"
	}
	return dsn + "?_foreign_keys=1"
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		normalized_username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		public_key TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		encrypted_content TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
		recipient_id INTEGER NOT NULL REFERENCES users(id) ON DELETE RESTRICT
	);

	CREATE INDEX IF NOT EXISTS ix_messages_pair ON messages (sender_id, recipient_id, sent_at);
	`

	if s.driverName == "postgres" {
		// Adjust for Postgres syntax
		query = strings.ReplaceAll(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
		query = strings.ReplaceAll(query, "DATETIME", "TIMESTAMPTZ")
	}

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	query := s.rebind("INSERT INTO users (username, normalized_username, password_hash, public_key) VALUES (?, ?, ?, ?) RETURNING id")
	err := s.db.QueryRowContext(ctx, query, user.Username, store.NormalizeUserName(user.Username), user.PasswordHash, user.PublicKey).Scan(&user.ID)
	if isUniqueViolation(err) {
		return store.ErrUsernameTaken
	}
	return err
}

func (s *SQLStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, password_hash, public_key FROM users WHERE " + where + " = ?")
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.PublicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "normalized_username", store.NormalizeUserName(username))
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLStore) UserExists(ctx context.Context, id int) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)")
	err := s.db.QueryRowContext(ctx, query, id).Scan(&exists)
	return exists, err
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, username FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.UserSummary{}
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	msg.Timestamp = msg.Timestamp.UTC()
	query := s.rebind("INSERT INTO messages (encrypted_content, sent_at, sender_id, recipient_id) VALUES (?, ?, ?, ?) RETURNING id")
	return s.db.QueryRowContext(ctx, query, msg.EncryptedContent, msg.Timestamp, msg.SenderID, msg.RecipientID).Scan(&msg.ID)
}

func (s *SQLStore) GetConversation(ctx context.Context, userA, userB int) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, encrypted_content, sent_at, sender_id, recipient_id
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?)
		   OR (sender_id = ? AND recipient_id = ?)
		ORDER BY sent_at ASC, id ASC
	`)
	return s.queryMessages(ctx, query, userA, userB, userB, userA)
}

func (s *SQLStore) GetMessagesFrom(ctx context.Context, senderID, recipientID int) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, encrypted_content, sent_at, sender_id, recipient_id
		FROM messages
		WHERE sender_id = ? AND recipient_id = ?
		ORDER BY sent_at ASC, id ASC
	`)
	return s.queryMessages(ctx, query, senderID, recipientID)
}

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		var sentAt time.Time
		if err := rows.Scan(&m.ID, &m.EncryptedContent, &sentAt, &m.SenderID, &m.RecipientID); err != nil {
			return nil, err
		}
		m.Timestamp = sentAt.UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
