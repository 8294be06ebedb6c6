package models

import "time"

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	PublicKey    string `json:"publicKey"`
}

// UserSummary is the public view of a user returned by the user listing.
type UserSummary struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Message is an immutable direct message. EncryptedContent is opaque to the
// server; Timestamp is assigned on receipt.
type Message struct {
	ID               int       `json:"id"`
	EncryptedContent string    `json:"encryptedContent"`
	Timestamp        time.Time `json:"timestamp"`
	SenderID         int       `json:"senderId"`
	RecipientID      int       `json:"recipientId"`
}
