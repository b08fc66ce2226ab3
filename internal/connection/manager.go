package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/metatavu/pakkasmarja-realtime/internal/models"
	"github.com/metatavu/pakkasmarja-realtime/internal/session"
	"github.com/metatavu/pakkasmarja-realtime/pkg/broker"
)

// State describes the connection manager's position in its lifecycle.
type State int32

const (
	// Disconnected means no credential is known or no connection is open.
	Disconnected State = iota
	// Resolving means a credential change was observed and the parameters
	// lookup or the broker handshake is in flight.
	Resolving
	// Connected means the physical connection is open and has completed its
	// handshake.
	Connected
)

// String returns a human readable state name.
func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrParametersLookup indicates the broker parameters fetch failed.
	ErrParametersLookup = errors.New("connection parameters lookup failed")

	// ErrPublish indicates the broker rejected or failed to acknowledge a
	// publish, or the message was dropped before delivery.
	ErrPublish = errors.New("publish failed")
)

// MessageHandler receives every inbound message from the shared broker
// topic. The topic router installs itself here.
type MessageHandler func(topic string, payload []byte)

// pendingPublish is an outbound message queued because no physical
// connection existed at publish time. The done channel settles the original
// caller once the flushed publish completes.
type pendingPublish struct {
	subtopic string
	payload  []byte
	done     chan error
}

const disconnectQuiesceMs = 250

// Manager maintains at most one live physical connection to the broker,
// matching the currently known credential. Credential changes arriving on
// the event bus tear down the old connection, re-derive the connection
// parameters and open a new one. Publishes issued while no connection
// exists are buffered and flushed in order once the handshake completes.
type Manager struct {
	paramsURL      string
	clientIDPrefix string
	qos            byte
	bus            evbus.Bus
	logger         zerolog.Logger
	httpClient     *http.Client
	newClient      broker.ClientFactory

	mu       sync.Mutex
	state    State
	client   broker.Client
	params   *models.ConnectionParameters
	pending  []pendingPublish
	flushing bool
	handler  MessageHandler
}

// NewManager initializes a new connection Manager. The factory builds the
// underlying MQTT client; production wiring passes broker.NewClient.
func NewManager(paramsURL, clientIDPrefix string, qos byte, bus evbus.Bus,
	logger zerolog.Logger, factory broker.ClientFactory) *Manager {

	return &Manager{
		paramsURL:      paramsURL,
		clientIDPrefix: clientIDPrefix,
		qos:            qos,
		bus:            bus,
		logger:         logger,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		newClient:      factory,
	}
}

// Start subscribes the manager to credential changes on the event bus.
func (cm *Manager) Start() error {
	if err := cm.bus.Subscribe(session.CredentialTopic, cm.HandleCredentialChange); err != nil {
		return fmt.Errorf("failed to subscribe to credential events: %w", err)
	}

	cm.logger.Info().Msg("ConnectionManager started successfully")
	return nil
}

// Stop unsubscribes from credential changes and tears down any open
// connection.
func (cm *Manager) Stop() error {
	if err := cm.bus.Unsubscribe(session.CredentialTopic, cm.HandleCredentialChange); err != nil {
		cm.logger.Warn().Err(err).Msg("Failed to unsubscribe from credential events")
	}

	cm.Disconnect()
	cm.logger.Info().Msg("ConnectionManager stopped successfully")
	return nil
}

// State returns the current lifecycle state.
func (cm *Manager) State() State {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

// SetMessageHandler installs the handler invoked for every inbound message
// on the shared subscription topic.
func (cm *Manager) SetMessageHandler(handler MessageHandler) {
	cm.mu.Lock()
	cm.handler = handler
	cm.mu.Unlock()
}

// HandleCredentialChange reacts to a credential replacement: the old
// connection is closed, new parameters are fetched with the new bearer
// token and a new connection is opened. A nil credential means logged out
// and simply disconnects. Buffered publishes survive the reconnect.
func (cm *Manager) HandleCredentialChange(credential *models.Credential) {
	if credential == nil {
		cm.logger.Info().Msg("Credential cleared, disconnecting from broker")
		cm.Disconnect()
		return
	}

	cm.mu.Lock()
	if cm.client != nil {
		old := cm.client
		cm.client = nil
		cm.params = nil
		// Graceful close without waiting for broker acknowledgment.
		go old.Disconnect(disconnectQuiesceMs)
	}
	cm.state = Resolving
	cm.flushing = false
	cm.mu.Unlock()

	cm.logger.Info().Msg("Credential changed, resolving connection parameters")

	params, err := cm.lookupParameters(credential.AccessToken)
	if err != nil {
		cm.logger.Error().Err(err).Msg("Connection parameters lookup failed")
		cm.mu.Lock()
		cm.state = Disconnected
		cm.mu.Unlock()
		return
	}

	cm.connect(params)
}

// Disconnect tears down the physical connection, fails any buffered
// publishes and leaves the manager disconnected. Safe to call even when
// never connected.
func (cm *Manager) Disconnect() {
	cm.mu.Lock()
	client := cm.client
	pending := cm.pending
	cm.client = nil
	cm.params = nil
	cm.pending = nil
	cm.flushing = false
	cm.state = Disconnected
	cm.mu.Unlock()

	for _, entry := range pending {
		entry.done <- fmt.Errorf("%w: disconnected before delivery", ErrPublish)
	}

	if client != nil {
		client.Disconnect(disconnectQuiesceMs)
	}
}

// Publish sends a payload to the given subtopic and blocks until the broker
// acknowledges it. When no connection is live the message is buffered and
// the call blocks until the buffered entry is flushed after the next
// handshake, keeping issue order.
func (cm *Manager) Publish(subtopic string, payload []byte) error {
	cm.mu.Lock()
	if cm.state != Connected || cm.flushing || cm.client == nil {
		done := make(chan error, 1)
		cm.pending = append(cm.pending, pendingPublish{subtopic: subtopic, payload: payload, done: done})
		queued := len(cm.pending)
		cm.mu.Unlock()

		cm.logger.Debug().Str("subtopic", subtopic).Int("queued", queued).Msg("Buffered publish, no live connection")
		return <-done
	}

	client := cm.client
	params := cm.params
	cm.mu.Unlock()

	return cm.publishNow(client, params, subtopic, payload)
}

// connect opens a new physical connection with the given parameters.
func (cm *Manager) connect(params *models.ConnectionParameters) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(params.BrokerURL())
	opts.SetClientID(cm.clientIDPrefix + "-" + uuid.New().String())
	opts.SetUsername(params.Username)
	opts.SetPassword(params.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	var client broker.Client
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		cm.onConnected(client)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		cm.logger.Warn().Err(err).Msg("Broker connection lost, transport will retry")
	})

	client = cm.newClient(opts)

	cm.mu.Lock()
	cm.client = client
	cm.params = params
	cm.mu.Unlock()

	cm.logger.Info().Str("broker", params.BrokerURL()).Msg("Connecting to broker")

	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		cm.logger.Error().Err(err).Msg("Failed to connect to broker")
		cm.mu.Lock()
		if cm.client == client {
			cm.state = Disconnected
		}
		cm.mu.Unlock()
	}
}

// onConnected runs after the broker handshake: it subscribes the shared
// topic and flushes the buffered publishes exactly once, in FIFO order.
// The transport invokes it again after automatic reconnects, which renews
// the subscription.
func (cm *Manager) onConnected(client broker.Client) {
	cm.mu.Lock()
	if cm.client != client {
		// A newer credential replaced this connection while it was
		// handshaking.
		cm.mu.Unlock()
		return
	}
	cm.state = Connected
	cm.flushing = true
	params := cm.params
	cm.mu.Unlock()

	topic := params.SubscriptionTopic()
	token := client.Subscribe(topic, cm.qos, cm.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		cm.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to shared topic")
	} else {
		cm.logger.Info().Str("topic", topic).Msg("Connected and subscribed to shared topic")
	}

	cm.flushPending(client, params)
}

// flushPending drains the buffered publishes in order. Publishes issued
// while the drain is running are appended to the same queue, so they are
// sent after the buffered batch, never ahead of it.
func (cm *Manager) flushPending(client broker.Client, params *models.ConnectionParameters) {
	for {
		cm.mu.Lock()
		if cm.client != client {
			// Torn down mid-flush; remaining entries wait for the next
			// connection.
			cm.flushing = false
			cm.mu.Unlock()
			return
		}
		if len(cm.pending) == 0 {
			cm.flushing = false
			cm.mu.Unlock()
			return
		}
		entry := cm.pending[0]
		cm.pending = cm.pending[1:]
		cm.mu.Unlock()

		entry.done <- cm.publishNow(client, params, entry.subtopic, entry.payload)
	}
}

// publishNow performs a single broker publish and waits for acknowledgment.
func (cm *Manager) publishNow(client broker.Client, params *models.ConnectionParameters,
	subtopic string, payload []byte) error {

	token := client.Publish(params.PublishTopic(subtopic), cm.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

// onMessage forwards an inbound broker message to the installed handler.
func (cm *Manager) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cm.mu.Lock()
	handler := cm.handler
	cm.mu.Unlock()

	if handler != nil {
		handler(msg.Topic(), msg.Payload())
	}
}

// lookupParameters fetches the connection parameters for the given bearer
// token. Failures leave the manager disconnected; the next credential
// change re-triggers resolution.
func (cm *Manager) lookupParameters(accessToken string) (*models.ConnectionParameters, error) {
	req, err := http.NewRequest(http.MethodGet, cm.paramsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParametersLookup, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := cm.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParametersLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrParametersLookup, resp.StatusCode, string(body))
	}

	var params models.ConnectionParameters
	if err := json.NewDecoder(resp.Body).Decode(&params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParametersLookup, err)
	}

	return &params, nil
}
