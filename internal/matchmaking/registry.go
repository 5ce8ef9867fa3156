package matchmaking

import "time"

// ConnID identifies one live transport connection. It is assigned by the
// transport layer and treated as opaque here.
type ConnID string

// Client is the registry record for a connected participant.
type Client struct {
	ID ConnID

	// Address is the application-level handle the client published so its
	// partner can reach it for direct peer transport. May be empty.
	Address string

	ConnectedAt time.Time
}

// Registry tracks live connections. It is not safe for concurrent use; the
// Coordinator that owns it serializes access.
type Registry struct {
	clients map[ConnID]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[ConnID]*Client)}
}

// Register creates a Client record. It reports false if id is already known.
func (r *Registry) Register(id ConnID, now time.Time) bool {
	if _, ok := r.clients[id]; ok {
		return false
	}
	r.clients[id] = &Client{ID: id, ConnectedAt: now}
	return true
}

// SetAddress updates the external address, last write wins. Unknown ids are
// ignored.
func (r *Registry) SetAddress(id ConnID, addr string) bool {
	c, ok := r.clients[id]
	if !ok {
		return false
	}
	c.Address = addr
	return true
}

// Unregister removes the record. Removing an unknown id is a no-op.
func (r *Registry) Unregister(id ConnID) bool {
	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

// Lookup returns a copy of the record for id.
func (r *Registry) Lookup(id ConnID) (Client, bool) {
	c, ok := r.clients[id]
	if !ok {
		return Client{}, false
	}
	return *c, true
}

func (r *Registry) Contains(id ConnID) bool {
	_, ok := r.clients[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.clients)
}
