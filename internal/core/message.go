package core

import "time"

// Message is the domain model for a chat message.
type Message struct {
	ID        string
	UserID    string
	Username  string
	Text      string
	CreatedAt time.Time
}

// User is a joined room member.
type User struct {
	ID   string
	Name string
}
