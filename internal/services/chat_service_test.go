package services

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metatavu/pakkasmarja-realtime/internal/routing"
)

// fakeRouter captures subscriptions and outbound publishes for the
// consumer service tests.
type fakeRouter struct {
	handlers  map[string]routing.Handler
	disposed  []string
	published []struct {
		subtopic string
		message  any
	}
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{handlers: map[string]routing.Handler{}}
}

func (f *fakeRouter) Subscribe(subtopic string, fn routing.Handler) func() {
	f.handlers[subtopic] = fn
	return func() {
		delete(f.handlers, subtopic)
		f.disposed = append(f.disposed, subtopic)
	}
}

func (f *fakeRouter) Publish(subtopic string, message any) error {
	f.published = append(f.published, struct {
		subtopic string
		message  any
	}{subtopic, message})
	return nil
}

func (f *fakeRouter) deliver(t *testing.T, subtopic, payload string) {
	t.Helper()

	handler, ok := f.handlers[subtopic]
	require.True(t, ok, "no handler registered for %s", subtopic)
	handler(json.RawMessage(payload))
}

// TestChatService_UnreadCounts tests the unread bookkeeping across chat
// message operations.
func TestChatService_UnreadCounts(t *testing.T) {
	router := newFakeRouter()
	service := NewChatService("chatmessages", router, zerolog.Nop())
	require.NoError(t, service.Start())

	router.deliver(t, "chatmessages", `{"operation":"CREATED","threadId":5}`)
	router.deliver(t, "chatmessages", `{"operation":"CREATED","threadId":5}`)
	router.deliver(t, "chatmessages", `{"operation":"CREATED","threadId":7}`)

	assert.Equal(t, 2, service.UnreadCount(5))
	assert.Equal(t, 1, service.UnreadCount(7))
	assert.Equal(t, 3, service.TotalUnread())

	router.deliver(t, "chatmessages", `{"operation":"DELETED","threadId":5}`)
	assert.Equal(t, 1, service.UnreadCount(5))

	router.deliver(t, "chatmessages", `{"operation":"READ","threadId":5}`)
	assert.Equal(t, 0, service.UnreadCount(5))
	assert.Equal(t, 1, service.TotalUnread())
}

// TestChatService_IgnoresMalformedEvents tests that malformed payloads do
// not change the counts.
func TestChatService_IgnoresMalformedEvents(t *testing.T) {
	router := newFakeRouter()
	service := NewChatService("chatmessages", router, zerolog.Nop())
	require.NoError(t, service.Start())

	router.deliver(t, "chatmessages", `{"operation":`)
	router.deliver(t, "chatmessages", `{"operation":"UNKNOWN","threadId":5}`)

	assert.Equal(t, 0, service.TotalUnread())
}

// TestChatService_NotifyMessageCreated tests the outbound announcement.
func TestChatService_NotifyMessageCreated(t *testing.T) {
	router := newFakeRouter()
	service := NewChatService("chatmessages", router, zerolog.Nop())

	require.NoError(t, service.NotifyMessageCreated(5, 42))

	require.Len(t, router.published, 1)
	assert.Equal(t, "chatmessages", router.published[0].subtopic)
}

// TestChatService_StartStop tests the running-state bookkeeping and that
// stopping disposes the subscription.
func TestChatService_StartStop(t *testing.T) {
	router := newFakeRouter()
	service := NewChatService("chatmessages", router, zerolog.Nop())

	require.NoError(t, service.Start())

	err := service.Start()
	assert.Error(t, err)
	assert.Equal(t, "chat service is already running", err.Error())

	require.NoError(t, service.Stop())
	assert.Equal(t, []string{"chatmessages"}, router.disposed)

	err = service.Stop()
	assert.Error(t, err)
	assert.Equal(t, "chat service is not running", err.Error())
}
