package routing

import (
	"encoding/json"
	"strings"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/metatavu/pakkasmarja-realtime/internal/connection"
)

// Handler receives the parsed JSON payload of an inbound message on the
// subtopic it was registered for.
type Handler func(payload json.RawMessage)

// Publisher is the slice of the connection manager the router needs.
type Publisher interface {
	Publish(subtopic string, payload []byte) error
	SetMessageHandler(handler connection.MessageHandler)
}

// registration identifies a single subscription. The same function may be
// registered more than once; each registration fires separately.
type registration struct {
	fn Handler
}

// Router demultiplexes the single inbound broker topic stream into named
// subtopic channels and lets independent consumers subscribe and publish
// without knowing about each other. Consumers keep their registrations
// across reconnects; the connection layer renews the broker subscription
// underneath them.
type Router struct {
	conn   Publisher
	subs   cmap.ConcurrentMap[string, []*registration]
	logger zerolog.Logger
}

// NewRouter initializes a Router and installs it as the connection's
// inbound message handler.
func NewRouter(conn Publisher, logger zerolog.Logger) *Router {
	router := &Router{
		conn:   conn,
		subs:   cmap.New[[]*registration](),
		logger: logger,
	}

	conn.SetMessageHandler(router.dispatch)
	return router
}

// Subscribe registers a handler for a subtopic and returns a function that
// removes exactly that registration. Handlers for a subtopic are invoked in
// registration order; registering the same handler twice fires it twice.
func (r *Router) Subscribe(subtopic string, fn Handler) func() {
	reg := &registration{fn: fn}

	r.subs.Upsert(subtopic, nil, func(_ bool, current, _ []*registration) []*registration {
		updated := make([]*registration, 0, len(current)+1)
		updated = append(updated, current...)
		return append(updated, reg)
	})

	return func() {
		r.subs.Upsert(subtopic, nil, func(_ bool, current, _ []*registration) []*registration {
			updated := make([]*registration, 0, len(current))
			for _, existing := range current {
				if existing != reg {
					updated = append(updated, existing)
				}
			}
			return updated
		})
	}
}

// Publish serializes the message as JSON and forwards it to the connection
// manager under the given subtopic.
func (r *Router) Publish(subtopic string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return r.conn.Publish(subtopic, payload)
}

// dispatch routes one inbound broker message: the substring after the final
// topic separator selects the subtopic, and every handler registered for it
// runs in order. Messages for subtopics nobody listens to are dropped.
func (r *Router) dispatch(topic string, payload []byte) {
	trimmed := strings.Trim(topic, "/")
	subtopic := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		subtopic = trimmed[idx+1:]
	}

	handlers, ok := r.subs.Get(subtopic)
	if !ok || len(handlers) == 0 {
		r.logger.Debug().Str("subtopic", subtopic).Msg("No subscribers for inbound message")
		return
	}

	if !json.Valid(payload) {
		r.logger.Warn().Str("subtopic", subtopic).Msg("Dropping inbound message with invalid JSON payload")
		return
	}

	message := json.RawMessage(payload)
	for _, reg := range handlers {
		r.invoke(subtopic, reg, message)
	}
}

// invoke runs a single handler inside its own error boundary so one faulty
// subscriber cannot prevent the others from seeing the message.
func (r *Router) invoke(subtopic string, reg *registration, message json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("subtopic", subtopic).Interface("panic", rec).
				Msg("Subscriber panicked while handling message")
		}
	}()

	reg.fn(message)
}
