// Package buttons turns cabin call button presses published over MQTT into
// service requests.
package buttons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/internal/servicerequests"
	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/metrics"
)

const (
	DefaultTopic = "crewbell/buttons/+/press"

	connectTimeout = 10 * time.Second
	createTimeout  = 5 * time.Second
	dedupWindow    = time.Minute
)

// Intake creates service requests. *servicerequests.Service implements it.
type Intake interface {
	Create(ctx context.Context, input servicerequests.CreateInput) (*servicerequests.Request, error)
}

// Config locates the broker and the topic buttons publish on.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// Press is the payload a button publishes. Every field is optional; the
// location falls back to the topic segment before "/press".
type Press struct {
	ID         string  `json:"id"`
	Location   string  `json:"location"`
	Guest      string  `json:"guest"`
	Message    string  `json:"message"`
	Priority   string  `json:"priority"`
	Recipients []int64 `json:"recipients"`
}

// Bridge subscribes to button presses and forwards them to the intake.
type Bridge struct {
	cfg    Config
	intake Intake
	client mqtt.Client
	log    *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithClock overrides the clock used to expire duplicate press ids.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBridge validates cfg and prepares an MQTT client. Start connects it.
func NewBridge(cfg Config, intake Intake, opts ...Option) (*Bridge, error) {
	if intake == nil {
		return nil, errors.New("buttons: intake is required")
	}
	cfg.Broker = strings.TrimSpace(cfg.Broker)
	if cfg.Broker == "" {
		return nil, errors.New("buttons: broker is required")
	}
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("buttons: invalid qos %d", cfg.QoS)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = "crewbell"
	}

	b := &Bridge{
		cfg:    cfg,
		intake: intake,
		log:    logger.WithModule("buttons"),
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.client = mqtt.NewClient(b.clientOptions())
	return b, nil
}

func (b *Bridge) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	// unique per process so a restarted server does not kick its predecessor
	opts.SetClientID(fmt.Sprintf("%s-%s", b.cfg.ClientID, uuid.NewString()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		b.log.Info("connected to broker", zap.String("broker", b.cfg.Broker))
		if err := b.subscribe(client); err != nil {
			b.log.Error("subscribe failed", zap.Error(err))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warn("broker connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		b.log.Info("reconnecting to broker")
	})
	return opts
}

// subscribe runs on every (re)connect because the session is clean.
func (b *Bridge) subscribe(client mqtt.Client) error {
	token := client.Subscribe(b.cfg.Topic, b.cfg.QoS, b.HandleMessage)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe %s: timed out", b.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.cfg.Topic, err)
	}
	b.log.Info("subscribed", zap.String("topic", b.cfg.Topic))
	return nil
}

// Start connects to the broker. Presses are handled once the subscription is in place.
func (b *Bridge) Start() error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("buttons: connect %s: timed out", b.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("buttons: connect %s: %w", b.cfg.Broker, err)
	}
	return nil
}

// Stop disconnects, allowing in-flight work a quarter second to finish.
func (b *Bridge) Stop() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

// HandleMessage decodes a press and creates a service request. Retained
// messages and repeated press ids are ignored.
func (b *Bridge) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ButtonPresses.WithLabelValues("rejected").Inc()
			b.log.Error("button handler panic", zap.Any("panic", r), zap.String("topic", msg.Topic()))
		}
	}()

	if msg.Retained() {
		metrics.ButtonPresses.WithLabelValues("ignored").Inc()
		return
	}

	var press Press
	if payload := msg.Payload(); len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &press); err != nil {
			metrics.ButtonPresses.WithLabelValues("rejected").Inc()
			b.log.Warn("invalid button payload", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
	}

	if press.ID != "" && b.duplicate(press.ID) {
		metrics.ButtonPresses.WithLabelValues("ignored").Inc()
		b.log.Debug("duplicate button press", zap.String("id", press.ID))
		return
	}

	location := strings.TrimSpace(press.Location)
	if location == "" {
		location = LocationFromTopic(msg.Topic())
	}

	ctx, cancel := context.WithTimeout(context.Background(), createTimeout)
	defer cancel()

	req, err := b.intake.Create(ctx, servicerequests.CreateInput{
		Location:   location,
		Guest:      press.Guest,
		Message:    press.Message,
		Priority:   press.Priority,
		Recipients: press.Recipients,
	})
	if err != nil {
		if press.ID != "" {
			b.release(press.ID)
		}
		metrics.ButtonPresses.WithLabelValues("rejected").Inc()
		b.log.Warn("button press rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	metrics.ButtonPresses.WithLabelValues("created").Inc()
	b.log.Info("button press recorded", zap.String("request", req.ID), zap.String("location", req.Location))
}

// duplicate reports whether id was seen within the dedup window and records it.
func (b *Bridge) duplicate(id string) bool {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for key, at := range b.seen {
		if now.Sub(at) >= dedupWindow {
			delete(b.seen, key)
		}
	}
	if _, ok := b.seen[id]; ok {
		return true
	}
	b.seen[id] = now
	return false
}

// release forgets id so a redelivery of a rejected press is handled again.
func (b *Bridge) release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.seen, id)
}

// LocationFromTopic returns the segment before the trailing "press", with
// dashes and underscores read as spaces. "crewbell/buttons/sun-deck/press"
// yields "sun deck".
func LocationFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) >= 2 && parts[len(parts)-1] == "press" {
		parts = parts[:len(parts)-1]
	}
	segment := parts[len(parts)-1]
	return strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(segment))
}
