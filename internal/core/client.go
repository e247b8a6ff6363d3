package core

import "sync"

// Client is a connected participant as seen by the core layer.
// Name stays empty until the hub accepts a join.
type Client struct {
	ID       string
	Name     string
	Commands chan *Command
	Events   chan *Event

	done     chan struct{}
	kicked   chan struct{}
	doneOnce sync.Once
	kickOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
		done:     make(chan struct{}),
		kicked:   make(chan struct{}),
	}
}

// Kicked is closed when the hub removes the client on its own initiative.
// The connection owner should then close with a normal closure.
func (c *Client) Kicked() <-chan struct{} {
	return c.kicked
}

func (c *Client) user() User {
	return User{ID: c.ID, Name: c.Name}
}

func (c *Client) send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) stop() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) kick() {
	c.kickOnce.Do(func() { close(c.kicked) })
}
