package services

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/metatavu/pakkasmarja-realtime/internal/constants"
	"github.com/metatavu/pakkasmarja-realtime/internal/models"
)

// UnreadsService keeps the set of unread markers the badges are rendered
// from. Markers arrive and disappear through realtime unread events.
type UnreadsService struct {
	Subtopic string
	Router   Subscriber
	Logger   zerolog.Logger

	mu      sync.Mutex
	unreads map[string]models.UnreadEvent
	dispose func()
}

// NewUnreadsService initializes a new UnreadsService.
func NewUnreadsService(subtopic string, router Subscriber, logger zerolog.Logger) *UnreadsService {
	return &UnreadsService{
		Subtopic: subtopic,
		Router:   router,
		Logger:   logger,
		unreads:  make(map[string]models.UnreadEvent),
	}
}

// Start registers the service on its subtopic.
func (u *UnreadsService) Start() error {
	if u.dispose != nil {
		u.Logger.Warn().Msg("UnreadsService is already running")
		return errors.New("unreads service is already running")
	}

	u.dispose = u.Router.Subscribe(u.Subtopic, u.handleMessage)
	u.Logger.Info().Str("subtopic", u.Subtopic).Msg("UnreadsService started successfully")
	return nil
}

// Stop removes the service's subscription.
func (u *UnreadsService) Stop() error {
	if u.dispose == nil {
		u.Logger.Warn().Msg("UnreadsService is not running")
		return errors.New("unreads service is not running")
	}

	u.dispose()
	u.dispose = nil

	u.Logger.Info().Msg("UnreadsService stopped successfully")
	return nil
}

// Count returns the total number of unread markers.
func (u *UnreadsService) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.unreads)
}

// CountByPathPrefix returns how many unread markers point below the given
// path prefix, for example "chat-" for all chat threads.
func (u *UnreadsService) CountByPathPrefix(prefix string) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	count := 0
	for _, unread := range u.unreads {
		if strings.HasPrefix(unread.Path, prefix) {
			count++
		}
	}
	return count
}

// handleMessage applies one unread event to the marker set.
func (u *UnreadsService) handleMessage(payload json.RawMessage) {
	var event models.UnreadEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		u.Logger.Error().Err(err).Msg("Failed to parse unread event")
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	switch event.Operation {
	case constants.OperationCreated:
		u.unreads[event.ID] = event
	case constants.OperationDeleted, constants.OperationRead:
		delete(u.unreads, event.ID)
	default:
		u.Logger.Debug().Str("operation", event.Operation).Msg("Ignoring unknown unread operation")
	}
}
