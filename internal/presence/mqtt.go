package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/hamori-app/hamori/internal/readiness"
)

const mqttWait = 10 * time.Second

// ErrMQTTTimeout is returned when the broker does not acknowledge in time.
var ErrMQTTTimeout = errors.New("mqtt: broker did not acknowledge")

// mqttClient is the subset of mqtt.Client used here.
type mqttClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT is a PeerPresenceSource bridged through an MQTT broker. Devices
// publish {"ready": bool} to {root}/sessions/{session}/members/{member}/ready
// and receive notify requests on {root}/sessions/{session}/notify.
type MQTT struct {
	client mqttClient
	root   string
	qos    byte
}

// DialMQTT connects to broker.
func DialMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("MQTT connection lost", "error", err)
		})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(mqttWait) {
		return nil, fmt.Errorf("connect %s: %w", broker, ErrMQTTTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, err)
	}
	slog.Info("Connected to MQTT broker", "broker", broker)
	return c, nil
}

// NewMQTT creates an MQTT presence source publishing under root.
func NewMQTT(client mqttClient, root string) *MQTT {
	return &MQTT{client: client, root: strings.TrimRight(root, "/"), qos: 1}
}

func (m *MQTT) readyFilter(sessionID string) string {
	return fmt.Sprintf("%s/sessions/%s/members/+/ready", m.root, sessionID)
}

func (m *MQTT) notifyTopic(sessionID string) string {
	return fmt.Sprintf("%s/sessions/%s/notify", m.root, sessionID)
}

// memberFromTopic extracts the member ID from a ready topic.
func memberFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	n := len(parts)
	if n < 4 || parts[n-1] != "ready" || parts[n-3] != "members" || parts[n-2] == "" {
		return "", false
	}
	return parts[n-2], true
}

// parseReady accepts {"ready": bool} or a bare true/false payload.
func parseReady(payload []byte) (bool, bool) {
	var body struct {
		Ready *bool `json:"ready"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Ready != nil {
		return *body.Ready, true
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(string(payload))); err == nil {
		return v, true
	}
	return false, false
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(mqttWait) {
		return ErrMQTTTimeout
	}
	return token.Error()
}

// Subscribe subscribes to the session's member ready topics.
func (m *MQTT) Subscribe(ctx context.Context, s readiness.Session) (<-chan readiness.PeerUpdate, error) {
	ch := make(chan readiness.PeerUpdate, 16)
	var (
		mu     sync.Mutex
		closed bool
	)

	filter := m.readyFilter(s.ID)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		member, ok := memberFromTopic(msg.Topic())
		if !ok {
			return
		}
		ready, ok := parseReady(msg.Payload())
		if !ok {
			slog.Debug("Ignoring malformed ready payload", "topic", msg.Topic())
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- readiness.PeerUpdate{MemberID: member, Ready: ready}:
		default:
			slog.Warn("MQTT presence subscriber full, dropping update", "session_id", s.ID, "member_id", member)
		}
	}

	if err := wait(m.client.Subscribe(filter, m.qos, handler)); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", filter, err)
	}

	go func() {
		<-ctx.Done()
		if err := wait(m.client.Unsubscribe(filter)); err != nil {
			slog.Warn("MQTT unsubscribe failed", "topic", filter, "error", err)
		}
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch, nil
}

type notifyPayload struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	SentAt    int64  `json:"sent_at"`
}

// Broadcast publishes a notify request for the session. Replies arrive
// through Subscribe.
func (m *MQTT) Broadcast(ctx context.Context, s readiness.Session) ([]readiness.PeerUpdate, error) {
	payload, err := json.Marshal(notifyPayload{SessionID: s.ID, From: s.SelfID, SentAt: time.Now().Unix()})
	if err != nil {
		return nil, err
	}
	topic := m.notifyTopic(s.ID)
	if err := wait(m.client.Publish(topic, m.qos, false, payload)); err != nil {
		return nil, fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil, nil
}
