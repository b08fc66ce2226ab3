package broker

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client defines the interface for the underlying MQTT client.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// ClientFactory builds a Client from prepared client options. The connection
// manager creates a fresh client for every credential change; tests inject a
// factory returning a fake.
type ClientFactory func(opts *mqtt.ClientOptions) Client

// NewClient is the production ClientFactory backed by paho.
func NewClient(opts *mqtt.ClientOptions) Client {
	return mqtt.NewClient(opts)
}
