// Package chat validates, persists and reads back direct messages. It is
// transport agnostic: the realtime hub and the HTTP handlers both call it with
// a caller id that has already been authenticated.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pliu/securemsg/internal/models"
	"github.com/pliu/securemsg/internal/store"
)

type Kind int

const (
	KindInvalid Kind = iota + 1
	KindNotFound
)

// Error is a recoverable fault whose message is safe to show the caller.
// Any other error from Service is a storage failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// AsError reports whether err is a caller-visible chat error.
func AsError(err error) (*Error, bool) {
	var chatErr *Error
	ok := errors.As(err, &chatErr)
	return chatErr, ok
}

var ErrInvalidContent = &Error{Kind: KindInvalid, Message: "Invalid message content"}

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Send validates and stores a message from senderID. The timestamp is taken
// from the server clock when the message is accepted.
func (s *Service) Send(ctx context.Context, senderID, recipientID int, content string) (*models.Message, error) {
	if err := s.requireUser(ctx, recipientID, "Recipient id %d not found."); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, senderID, "Sender id %d not found."); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidContent
	}

	msg := &models.Message{
		EncryptedContent: content,
		Timestamp:        s.now().UTC(),
		SenderID:         senderID,
		RecipientID:      recipientID,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// CheckParticipants verifies both ends of a conversation exist.
func (s *Service) CheckParticipants(ctx context.Context, senderID, recipientID int) error {
	if err := s.requireUser(ctx, recipientID, "Recipient id %d not found."); err != nil {
		return err
	}
	return s.CheckSender(ctx, senderID)
}

func (s *Service) CheckSender(ctx context.Context, senderID int) error {
	return s.requireUser(ctx, senderID, "Sender id %d not found.")
}

// History returns every message exchanged between callerID and peerID,
// oldest first.
func (s *Service) History(ctx context.Context, callerID, peerID int) ([]models.Message, error) {
	if err := s.requireUser(ctx, peerID, "User id %d not found"); err != nil {
		return nil, err
	}
	messages, err := s.store.GetConversation(ctx, callerID, peerID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return messages, nil
}

// SentTo returns the messages callerID sent to recipientID, oldest first.
func (s *Service) SentTo(ctx context.Context, callerID, recipientID int) ([]models.Message, error) {
	if err := s.requireUser(ctx, recipientID, "User id %d not found"); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessagesFrom(ctx, callerID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("load sent messages: %w", err)
	}
	return messages, nil
}

// ReceivedFrom returns the messages senderID sent to callerID, oldest first.
func (s *Service) ReceivedFrom(ctx context.Context, callerID, senderID int) ([]models.Message, error) {
	if err := s.requireUser(ctx, senderID, "User id %d not found"); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessagesFrom(ctx, senderID, callerID)
	if err != nil {
		return nil, fmt.Errorf("load received messages: %w", err)
	}
	return messages, nil
}

func (s *Service) requireUser(ctx context.Context, id int, notFoundFormat string) error {
	exists, err := s.store.UserExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check user %d: %w", id, err)
	}
	if !exists {
		return notFound(notFoundFormat, id)
	}
	return nil
}

// ConversationKey names the group shared by two users. Both participants get
// the same key regardless of who asks.
func ConversationKey(userA, userB int) string {
	return fmt.Sprintf("conversation_%d-%d", max(userA, userB), min(userA, userB))
}
