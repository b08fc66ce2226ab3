package services

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/metatavu/pakkasmarja-realtime/internal/constants"
	"github.com/metatavu/pakkasmarja-realtime/internal/models"
	"github.com/metatavu/pakkasmarja-realtime/internal/routing"
)

// Subscriber is the slice of the topic router the consumer services need.
type Subscriber interface {
	Subscribe(subtopic string, fn routing.Handler) func()
	Publish(subtopic string, message any) error
}

// ChatService tracks per-thread unread counts from realtime chat message
// events and announces locally created messages to other clients.
type ChatService struct {
	Subtopic string
	Router   Subscriber
	Logger   zerolog.Logger

	mu           sync.Mutex
	unreadCounts map[int64]int
	dispose      func()
}

// NewChatService initializes a new ChatService.
func NewChatService(subtopic string, router Subscriber, logger zerolog.Logger) *ChatService {
	return &ChatService{
		Subtopic:     subtopic,
		Router:       router,
		Logger:       logger,
		unreadCounts: make(map[int64]int),
	}
}

// Start registers the service on its subtopic.
func (c *ChatService) Start() error {
	if c.dispose != nil {
		c.Logger.Warn().Msg("ChatService is already running")
		return errors.New("chat service is already running")
	}

	c.dispose = c.Router.Subscribe(c.Subtopic, c.handleMessage)
	c.Logger.Info().Str("subtopic", c.Subtopic).Msg("ChatService started successfully")
	return nil
}

// Stop removes the service's subscription. Its handler never fires again
// afterwards.
func (c *ChatService) Stop() error {
	if c.dispose == nil {
		c.Logger.Warn().Msg("ChatService is not running")
		return errors.New("chat service is not running")
	}

	c.dispose()
	c.dispose = nil

	c.Logger.Info().Msg("ChatService stopped successfully")
	return nil
}

// UnreadCount returns the number of unread messages tracked for a thread.
func (c *ChatService) UnreadCount(threadID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unreadCounts[threadID]
}

// TotalUnread returns the unread message count across all threads.
func (c *ChatService) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, count := range c.unreadCounts {
		total += count
	}
	return total
}

// NotifyMessageCreated tells other clients that a message was added to the
// given thread.
func (c *ChatService) NotifyMessageCreated(threadID, messageID int64) error {
	return c.Router.Publish(c.Subtopic, models.ChatMessageEvent{
		Operation: constants.OperationCreated,
		ThreadID:  threadID,
		MessageID: messageID,
	})
}

// handleMessage updates the unread bookkeeping from one chat message event.
func (c *ChatService) handleMessage(payload json.RawMessage) {
	var event models.ChatMessageEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.Logger.Error().Err(err).Msg("Failed to parse chat message event")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.Operation {
	case constants.OperationCreated:
		c.unreadCounts[event.ThreadID]++
	case constants.OperationDeleted:
		if c.unreadCounts[event.ThreadID] > 0 {
			c.unreadCounts[event.ThreadID]--
		}
	case constants.OperationRead:
		delete(c.unreadCounts, event.ThreadID)
	default:
		c.Logger.Debug().Str("operation", event.Operation).Msg("Ignoring unknown chat operation")
	}
}
