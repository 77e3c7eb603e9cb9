package publish

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"desalination_plant/internal/fieldio"
	"desalination_plant/internal/logger"
	"desalination_plant/internal/models"
	"desalination_plant/internal/service"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// MQTTConfig configures the broker connection and topic layout.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	QoS      byte   `mapstructure:"qos" yaml:"qos"`
}

// Topics under the configured prefix.
const (
	TopicState   = "state"
	TopicEvents  = "events"
	TopicCommand = "cmd"
	TopicAck     = "ack"
	TopicTags    = "tags"
)

const (
	connectTimeout    = 10 * time.Second
	subscribeTimeout  = 5 * time.Second
	disconnectQuiesce = 250
)

// MqttClient is the part of paho the bridge uses; calls are serialized.
type MqttClient interface {
	SafePublish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	SafeSubscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	SafeUnsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

type mqttClient struct {
	mutex sync.Mutex
	mqtt  mqtt.Client
}

func (m *mqttClient) SafePublish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.mqtt.Publish(topic, qos, retained, payload)
}

func (m *mqttClient) SafeSubscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.mqtt.Subscribe(topic, qos, callback)
}

func (m *mqttClient) SafeUnsubscribe(topics ...string) mqtt.Token {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.mqtt.Unsubscribe(topics...)
}

func (m *mqttClient) Disconnect(quiesce uint) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.mqtt.Disconnect(quiesce)
}

// DialMQTT connects to the broker. paho keeps reconnecting in the background
// after the first successful connect.
func DialMQTT(cfg MQTTConfig, log *logger.Logger) (MqttClient, error) {
	log = log.Named("mqtt")
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(2 * time.Second)
	opts.SetOrderMatters(false)
	opts.OnConnect = func(c mqtt.Client) {
		or := c.OptionsReader()
		log.Infow("mqtt_connected", "servers", or.Servers(), "client_id", or.ClientID())
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warnw("mqtt_connection_lost", "err", err)
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Infow("mqtt_reconnecting", "broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("connect to %s: timeout after %s", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connect to %s", cfg.Broker)
	}
	return &mqttClient{mqtt: client}, nil
}

// MQTTBridge publishes snapshots and events and turns messages on
// <prefix>/cmd/<name> into plant commands.
type MQTTBridge struct {
	client MqttClient
	prefix string
	qos    byte
	plant  service.Plant
	log    *logger.Logger
	cmdCtx func() (context.Context, context.CancelFunc)
	tagsOn bool
}

var _ service.Publisher = (*MQTTBridge)(nil)

func NewMQTTBridge(client MqttClient, cfg MQTTConfig, log *logger.Logger) *MQTTBridge {
	if log == nil {
		log = logger.Nop()
	}
	prefix := strings.TrimRight(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "desal"
	}
	return &MQTTBridge{
		client: client,
		prefix: prefix,
		qos:    cfg.QoS,
		log:    log.Named("mqtt"),
		cmdCtx: func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), 5*time.Second)
		},
	}
}

func (b *MQTTBridge) topic(parts ...string) string {
	return b.prefix + "/" + strings.Join(parts, "/")
}

// Subscribe starts turning command messages into calls on plant. Call it
// once, before the scan starts publishing.
func (b *MQTTBridge) Subscribe(plant service.Plant) error {
	filter := b.topic(TopicCommand, "#")
	b.plant = plant
	t := b.client.SafeSubscribe(filter, b.qos, b.onMessage)
	if !t.WaitTimeout(subscribeTimeout) {
		return errors.Errorf("subscribe %s: timeout", filter)
	}
	if err := t.Error(); err != nil {
		b.plant = nil
		return errors.Wrapf(err, "subscribe %s", filter)
	}
	return nil
}

// PublishState publishes the snapshot retained, so a new HMI sees the
// current state at once.
func (b *MQTTBridge) PublishState(_ context.Context, s models.PlantState) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	b.client.SafePublish(b.topic(TopicState), b.qos, true, payload)
	return nil
}

func (b *MQTTBridge) PublishEvent(_ context.Context, e models.PlantEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "encode event %s", e.EventID)
	}
	b.client.SafePublish(b.topic(TopicEvents), b.qos, false, payload)
	return nil
}

// SubscribeTags feeds field values published by an I/O gateway on
// <prefix>/tags/<TAG> into tags. Payloads are numbers or true/false.
func (b *MQTTBridge) SubscribeTags(tags fieldio.Tags) error {
	filter := b.topic(TopicTags, "+")
	t := b.client.SafeSubscribe(filter, b.qos, func(_ mqtt.Client, msg mqtt.Message) {
		name := strings.TrimPrefix(msg.Topic(), b.topic(TopicTags)+"/")
		v, err := parseTagValue(msg.Payload())
		if err != nil {
			b.log.Warnw("mqtt_tag_rejected", "tag", name, "err", errors.Wrapf(err, "tag %s", name))
			return
		}
		tags.Write(name, v)
	})
	if !t.WaitTimeout(subscribeTimeout) {
		return errors.Errorf("subscribe %s: timeout", filter)
	}
	if err := t.Error(); err != nil {
		return errors.Wrapf(err, "subscribe %s", filter)
	}
	b.tagsOn = true
	return nil
}

func parseTagValue(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Errorf("invalid tag value %q", s)
	}
	return v, nil
}

func (b *MQTTBridge) Close() error {
	var topics []string
	if b.plant != nil {
		topics = append(topics, b.topic(TopicCommand, "#"))
	}
	if b.tagsOn {
		topics = append(topics, b.topic(TopicTags, "+"))
	}
	if len(topics) > 0 {
		b.client.SafeUnsubscribe(topics...).WaitTimeout(subscribeTimeout)
	}
	b.client.Disconnect(disconnectQuiesce)
	return nil
}

type commandAck struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

func (b *MQTTBridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	name := strings.TrimPrefix(msg.Topic(), b.topic(TopicCommand)+"/")
	ctx, cancel := b.cmdCtx()
	defer cancel()

	ack := commandAck{Command: name, OK: true}
	if err := b.HandleCommand(ctx, name, msg.Payload()); err != nil {
		ack.OK = false
		ack.Error = err.Error()
		b.log.Warnw("mqtt_command_failed", "command", name, "err", err)
	} else {
		b.log.Infow("mqtt_command", "command", name)
	}
	if payload, err := json.Marshal(ack); err == nil {
		b.client.SafePublish(b.topic(TopicAck), b.qos, false, payload)
	}
}

// HandleCommand runs one named command. setpoints takes a JSON
// models.SetpointPatch; the others ignore the payload.
func (b *MQTTBridge) HandleCommand(ctx context.Context, name string, payload []byte) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "start":
		return b.plant.Start(ctx)
	case "stop":
		return b.plant.Stop(ctx)
	case "clean":
		return b.plant.Clean(ctx)
	case "reset":
		return b.plant.Reset(ctx)
	case "setpoints":
		var p models.SetpointPatch
		if err := json.Unmarshal(payload, &p); err != nil {
			return errors.Wrapf(err, "decode setpoints payload %q", payload)
		}
		return b.plant.SetSetpoints(ctx, p)
	default:
		return errors.Errorf("unknown command %q", name)
	}
}
