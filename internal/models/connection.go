package models

import (
	"fmt"
	"strings"
)

// ConnectionParameters describes how to reach the message broker. The values
// are derived from the current credential via the connection lookup endpoint
// and have no identity of their own; a new credential always yields
// parameters that must be treated as potentially different.
type ConnectionParameters struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Secure       bool   `json:"secure"`
	Path         string `json:"path"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Topic        string `json:"topic"`
	TopicPrefix  string `json:"topicPrefix"`
	TopicPostfix string `json:"topicPostfix"`
}

// BrokerURL builds the broker URL for the MQTT client. A non-empty path
// selects the websocket transport, otherwise plain TCP is used.
func (p *ConnectionParameters) BrokerURL() string {
	if p.Path != "" {
		scheme := "ws"
		if p.Secure {
			scheme = "wss"
		}
		path := p.Path
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return fmt.Sprintf("%s://%s:%d%s", scheme, p.Host, p.Port, path)
	}

	scheme := "tcp"
	if p.Secure {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.Host, p.Port)
}

// SubscriptionTopic returns the single broker-level topic the connection
// subscribes to. All subtopic traffic is multiplexed on it.
func (p *ConnectionParameters) SubscriptionTopic() string {
	return p.TopicPrefix + p.Topic + p.TopicPostfix
}

// PublishTopic returns the broker-level topic an outbound message for the
// given subtopic is published on.
func (p *ConnectionParameters) PublishTopic(subtopic string) string {
	return p.TopicPrefix + p.Topic + "/" + subtopic + "/"
}
