package utils

import (
	"github.com/metatavu/pakkasmarja-realtime/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	OAuth struct {
		AuthorityURL string `yaml:"authority_url"` // Token endpoint authority base URL
		Realm        string `yaml:"realm"`         // Authentication realm
		ClientID     string `yaml:"client_id"`     // OAuth client ID
		Timeout      int    `yaml:"timeout"`       // Timeout for token requests (in seconds)
	} `yaml:"oauth"`

	Session struct {
		PollInterval int `yaml:"poll_interval"` // Interval between credential expiry checks (in seconds)
		ExpirySlack  int `yaml:"expiry_slack"`  // Margin subtracted from token deadlines (in seconds)
	} `yaml:"session"`

	Connection struct {
		ParamsURL string `yaml:"params_url"` // Broker connection parameters endpoint
		ClientID  string `yaml:"client_id"`  // MQTT client ID prefix
		QOS       int    `yaml:"qos"`        // MQTT QoS level for all traffic
	} `yaml:"connection"`

	Services struct {
		Chat struct {
			Subtopic string `yaml:"subtopic"` // Subtopic for chat message events
			Enabled  bool   `yaml:"enabled"`  // Enable/disable chat service
		} `yaml:"chat"`

		Unreads struct {
			Subtopic string `yaml:"subtopic"` // Subtopic for unread marker events
			Enabled  bool   `yaml:"enabled"`  // Enable/disable unreads service
		} `yaml:"unreads"`

		Deliveries struct {
			Subtopic string `yaml:"subtopic"` // Subtopic for delivery events
			Enabled  bool   `yaml:"enabled"`  // Enable/disable deliveries service
		} `yaml:"deliveries"`
	} `yaml:"services"`

	Security struct {
		TokenFile  string `yaml:"token_file"`   // Path to the encrypted credential file
		AESKeyFile string `yaml:"aes_key_file"` // Path to the AES key file
	} `yaml:"security"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
