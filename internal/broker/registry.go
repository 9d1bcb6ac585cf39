package broker

import (
	"errors"

	"github.com/playperu/marslanding/internal/landing"
)

var ErrDuplicateConnection = errors.New("duplicate connection id")

// Client is one admitted connection.
type Client struct {
	ID   string
	Role landing.Role
	// Info is set for participants only.
	Info *landing.ParticipantInfo

	conn Conn
}

// Registry holds the admitted clients keyed by connection id. It is not safe
// for concurrent use; the Broker guards it.
type Registry struct {
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

func (r *Registry) Insert(c *Client) error {
	if _, ok := r.clients[c.ID]; ok {
		return ErrDuplicateConnection
	}
	r.clients[c.ID] = c
	return nil
}

func (r *Registry) Get(id string) *Client {
	return r.clients[id]
}

func (r *Registry) Remove(id string) {
	delete(r.clients, id)
}

func (r *Registry) CountByRole(role landing.Role) int {
	n := 0
	for _, c := range r.clients {
		if c.Role == role {
			n++
		}
	}
	return n
}

// FirstByRole returns a client with the given role, or nil. Admission keeps
// at most one client per role, so "first" is the only one.
func (r *Registry) FirstByRole(role landing.Role) *Client {
	for _, c := range r.clients {
		if c.Role == role {
			return c
		}
	}
	return nil
}

// Others returns every client except the one with id.
func (r *Registry) Others(id string) []*Client {
	out := make([]*Client, 0, len(r.clients))
	for cid, c := range r.clients {
		if cid != id {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Clear() {
	clear(r.clients)
}

func (r *Registry) Len() int {
	return len(r.clients)
}

func (r *Registry) Status() landing.Status {
	return landing.StatusFor(r.CountByRole(landing.RoleDisplay), r.CountByRole(landing.RoleParticipant))
}
