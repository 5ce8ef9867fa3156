package matchmaking

import "encoding/json"

// Relay forwards an opaque negotiation payload from one connection to
// another. An empty to addresses the sender's current session partner. The
// payload is never inspected; an unreachable target is dropped silently and
// it is up to the sender to time out.
func (c *Coordinator) Relay(from, to ConnID, kind Event, payload json.RawMessage) []Notification {
	if !c.registry.Contains(from) {
		c.log.Debug("Relay from unknown connection", "from", from)
		return nil
	}

	if to == "" {
		partner, ok := c.PartnerOf(from)
		if !ok {
			c.log.Debug("Relay dropped: sender has no partner", "from", from, "kind", kind)
			return nil
		}
		to = partner.ID
	}

	if to == from || !c.registry.Contains(to) {
		c.log.Debug("Relay dropped: target unreachable", "from", from, "to", to, "kind", kind)
		return nil
	}

	return []Notification{{To: to, Event: kind, From: from, Payload: payload}}
}
