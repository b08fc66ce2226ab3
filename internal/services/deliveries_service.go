package services

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/metatavu/pakkasmarja-realtime/internal/constants"
	"github.com/metatavu/pakkasmarja-realtime/internal/models"
)

// DeliveriesService mirrors the latest known status of each delivery from
// realtime delivery events, feeding the delivery dashboard.
type DeliveriesService struct {
	Subtopic string
	Router   Subscriber
	Logger   zerolog.Logger

	mu       sync.Mutex
	statuses map[string]string
	dispose  func()
}

// NewDeliveriesService initializes a new DeliveriesService.
func NewDeliveriesService(subtopic string, router Subscriber, logger zerolog.Logger) *DeliveriesService {
	return &DeliveriesService{
		Subtopic: subtopic,
		Router:   router,
		Logger:   logger,
		statuses: make(map[string]string),
	}
}

// Start registers the service on its subtopic.
func (d *DeliveriesService) Start() error {
	if d.dispose != nil {
		d.Logger.Warn().Msg("DeliveriesService is already running")
		return errors.New("deliveries service is already running")
	}

	d.dispose = d.Router.Subscribe(d.Subtopic, d.handleMessage)
	d.Logger.Info().Str("subtopic", d.Subtopic).Msg("DeliveriesService started successfully")
	return nil
}

// Stop removes the service's subscription.
func (d *DeliveriesService) Stop() error {
	if d.dispose == nil {
		d.Logger.Warn().Msg("DeliveriesService is not running")
		return errors.New("deliveries service is not running")
	}

	d.dispose()
	d.dispose = nil

	d.Logger.Info().Msg("DeliveriesService stopped successfully")
	return nil
}

// Status returns the latest known status for a delivery.
func (d *DeliveriesService) Status(deliveryID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	status, ok := d.statuses[deliveryID]
	return status, ok
}

// NotifyDeliveryUpdated tells other clients that a delivery changed state.
func (d *DeliveriesService) NotifyDeliveryUpdated(deliveryID, status string) error {
	return d.Router.Publish(d.Subtopic, models.DeliveryEvent{
		Operation:  constants.OperationUpdated,
		DeliveryID: deliveryID,
		Status:     status,
	})
}

// handleMessage applies one delivery event to the status map.
func (d *DeliveriesService) handleMessage(payload json.RawMessage) {
	var event models.DeliveryEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.Logger.Error().Err(err).Msg("Failed to parse delivery event")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch event.Operation {
	case constants.OperationCreated, constants.OperationUpdated:
		d.statuses[event.DeliveryID] = event.Status
	case constants.OperationDeleted:
		delete(d.statuses, event.DeliveryID)
	default:
		d.Logger.Debug().Str("operation", event.Operation).Msg("Ignoring unknown delivery operation")
	}
}
