package store

import (
	"context"
	"errors"
	"strings"

	"github.com/pliu/securemsg/internal/models"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrUsernameTaken = errors.New("store: username already exists")
)

// NormalizeUserName folds case so names that differ only in case resolve to
// the same account.
func NormalizeUserName(username string) string {
	return strings.ToUpper(username)
}

type Store interface {
	// User operations. Usernames are unique and looked up after
	// NormalizeUserName.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	UserExists(ctx context.Context, id int) (bool, error)
	ListUsers(ctx context.Context) ([]models.UserSummary, error)

	// Message operations
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetConversation(ctx context.Context, userA, userB int) ([]models.Message, error)
	GetMessagesFrom(ctx context.Context, senderID, recipientID int) ([]models.Message, error)

	Close() error
}
