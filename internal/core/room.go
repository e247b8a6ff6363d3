package core

// Room is the ordered set of joined clients.
type Room struct {
	clients []*Client
}

// NewRoom constructs a room with no clients.
func NewRoom() *Room {
	return &Room{}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if r.Contains(c) {
		return false
	}
	r.clients = append(r.clients, c)
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	for i, member := range r.clients {
		if member == c {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether c has joined.
func (r *Room) Contains(c *Client) bool {
	for _, member := range r.clients {
		if member == c {
			return true
		}
	}
	return false
}

// ByName returns the member using name, if any.
func (r *Room) ByName(name string) *Client {
	for _, member := range r.clients {
		if member.Name == name {
			return member
		}
	}
	return nil
}

// ByID returns the member with the given id, if any.
func (r *Room) ByID(id string) *Client {
	for _, member := range r.clients {
		if member.ID == id {
			return member
		}
	}
	return nil
}

// Users lists members in join order.
func (r *Room) Users() []User {
	users := make([]User, 0, len(r.clients))
	for _, member := range r.clients {
		users = append(users, member.user())
	}
	return users
}

// Broadcast sends an event to all clients in the room except skip.
func (r *Room) Broadcast(event *Event, skip *Client) {
	for _, client := range r.clients {
		if client == skip {
			continue
		}
		// Drop if slow consumer.
		client.send(event)
	}
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
