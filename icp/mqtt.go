package icp

import (
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultClientID is the MQTT client ID used when none is configured.
const DefaultClientID = "icpalign"

const connectTimeout = 10 * time.Second

// ResolveMQTTConfig applies the MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME,
// MQTT_PASSWORD and MQTT_PUBLISH_PREFIX environment variables on top of cfg.
// Environment values take precedence over the file.
func ResolveMQTTConfig(cfg MQTTConfig) MQTTConfig {
	override := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	override(&cfg.Broker, "MQTT_BROKER")
	override(&cfg.ClientID, "MQTT_CLIENT_ID")
	override(&cfg.Username, "MQTT_USERNAME")
	override(&cfg.Password, "MQTT_PASSWORD")
	override(&cfg.PublishPrefix, "MQTT_PUBLISH_PREFIX")

	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.PublishPrefix == "" {
		cfg.PublishPrefix = DefaultPublishPrefix
	}
	return cfg
}

// ClientOptions builds paho options for a resolved configuration.
func ClientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true) // iteration reports stay in order

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection interrupted, auto-reconnect will retry")
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Info().Msg("MQTT reconnecting")
	})
	return opts
}

// ConnectMQTT connects to the configured broker and waits for the connection.
// If no broker is configured (file or MQTT_BROKER), MQTT is disabled and
// ConnectMQTT returns a nil client and no error.
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	cfg = ResolveMQTTConfig(cfg)
	if cfg.Broker == "" {
		log.Debug().Msg("MQTT disabled: no broker configured")
		return nil, nil
	}

	client := mqtt.NewClient(ClientOptions(cfg))
	log.Info().Str("broker", cfg.Broker).Str("client_id", cfg.ClientID).Msg("connecting to MQTT broker")

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("connecting to %s: timed out after %s", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", cfg.Broker)
	}
	return client, nil
}
