package services

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metatavu/pakkasmarja-realtime/internal/models"
)

// TestDeliveriesService_Statuses tests mirroring delivery statuses from
// realtime events.
func TestDeliveriesService_Statuses(t *testing.T) {
	router := newFakeRouter()
	service := NewDeliveriesService("deliveries", router, zerolog.Nop())
	require.NoError(t, service.Start())

	router.deliver(t, "deliveries", `{"operation":"CREATED","deliveryId":"d1","status":"PROPOSAL"}`)
	router.deliver(t, "deliveries", `{"operation":"UPDATED","deliveryId":"d1","status":"DONE"}`)
	router.deliver(t, "deliveries", `{"operation":"CREATED","deliveryId":"d2","status":"PLANNED"}`)

	status, ok := service.Status("d1")
	require.True(t, ok)
	assert.Equal(t, "DONE", status)

	router.deliver(t, "deliveries", `{"operation":"DELETED","deliveryId":"d2"}`)
	_, ok = service.Status("d2")
	assert.False(t, ok)
}

// TestDeliveriesService_NotifyDeliveryUpdated tests the outbound
// announcement payload.
func TestDeliveriesService_NotifyDeliveryUpdated(t *testing.T) {
	router := newFakeRouter()
	service := NewDeliveriesService("deliveries", router, zerolog.Nop())

	require.NoError(t, service.NotifyDeliveryUpdated("d1", "DONE"))

	require.Len(t, router.published, 1)
	assert.Equal(t, "deliveries", router.published[0].subtopic)

	event, ok := router.published[0].message.(models.DeliveryEvent)
	require.True(t, ok)
	assert.Equal(t, "UPDATED", event.Operation)
	assert.Equal(t, "d1", event.DeliveryID)
	assert.Equal(t, "DONE", event.Status)
}

// TestDeliveriesService_StartStop tests the running-state bookkeeping.
func TestDeliveriesService_StartStop(t *testing.T) {
	router := newFakeRouter()
	service := NewDeliveriesService("deliveries", router, zerolog.Nop())

	require.NoError(t, service.Start())
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop())
	assert.Error(t, service.Stop())
}
