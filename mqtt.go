package main

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTChannel publishes notifications to an MQTT topic, which plays nicely
// with Home Assistant automations for users already feeding consumption
// data from there.
type MQTTChannel struct {
	client mqtt.Client
	topic  string
}

// NewMQTTChannel connects to the broker and returns a channel publishing to
// topic. Broker is a host:port address.
func NewMQTTChannel(broker, topic string) (*MQTTChannel, error) {
	if topic == "" {
		topic = "octopus-tariff-switcher/notifications"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID("octopus-tariff-switcher")
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", broker, token.Error())
	}

	return &MQTTChannel{client: client, topic: topic}, nil
}

func (ch *MQTTChannel) Send(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling MQTT payload: %w", err)
	}

	token := ch.client.Publish(ch.topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", ch.topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight publishes a moment
// to finish.
func (ch *MQTTChannel) Close() {
	ch.client.Disconnect(250)
}
