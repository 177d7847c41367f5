package report

import (
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/radiocal/pkg/calibration"
)

const (
	DefaultTopic   = "radiocal/records"
	publishTimeout = 5 * time.Second
)

// Publisher is the part of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each record as JSON to <topic>/<mac>.
type MQTT struct {
	client Publisher
	topic  string
	// disconnect is set when the sink owns the connection.
	disconnect func()
}

// NewMQTT wraps an existing publisher.
func NewMQTT(p Publisher, topic string) *MQTT {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTT{client: p, topic: strings.TrimSuffix(topic, "/")}
}

// DialMQTT connects to broker, e.g. tcp://localhost:1883.
func DialMQTT(broker, clientID, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, pkgerrors.Wrapf(token.Error(), "failed to connect to mqtt broker %s", broker)
	}
	logrus.WithField("broker", broker).Info("connected to mqtt broker")

	m := NewMQTT(client, topic)
	m.disconnect = func() { client.Disconnect(250) }
	return m, nil
}

func (m *MQTT) Write(rec calibration.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal record")
	}

	topic := m.topic
	if rec.MAC != "" {
		topic += "/" + strings.ReplaceAll(rec.MAC, ":", "")
	}

	token := m.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return pkgerrors.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return pkgerrors.Wrapf(err, "failed to publish to %s", topic)
	}
	return nil
}

func (m *MQTT) Close() error {
	if m.disconnect != nil {
		m.disconnect()
	}
	return nil
}
