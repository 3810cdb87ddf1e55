// Package mqttbackend implements the navigation.MotionBackend boundary over
// an MQTT broker: goals are published as JSON on a goal topic, the motion
// executor reports numeric goal-status codes on a status topic, and
// cancellation requests go out on a cancel topic.
package mqttbackend

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/edgerobotics/gridnav/navigation"
)

// Config describes how to reach the motion executor.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	GoalTopic   string `json:"goal_topic"`
	StatusTopic string `json:"status_topic"`
	CancelTopic string `json:"cancel_topic"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Broker == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "broker")
	}
	return nil
}

func (cfg Config) withDefaults() Config {
	if cfg.ClientID == "" {
		cfg.ClientID = "gridnav"
	}
	if cfg.GoalTopic == "" {
		cfg.GoalTopic = "move_base/goal"
	}
	if cfg.StatusTopic == "" {
		cfg.StatusTopic = "move_base/status"
	}
	if cfg.CancelTopic == "" {
		cfg.CancelTopic = "move_base/cancel"
	}
	return cfg
}

const (
	defaultQoS         = 1
	statusPollInterval = 50 * time.Millisecond
	disconnectQuiesce  = 250 // milliseconds
)

// GoalMessage is the wire form of a dispatched goal.
type GoalMessage struct {
	GoalID string  `json:"goal_id"`
	Seq    int64   `json:"seq"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Theta  float64 `json:"theta"`
}

// StatusMessage is the wire form of a goal-status report.
type StatusMessage struct {
	GoalID string `json:"goal_id"`
	Status uint8  `json:"status"`
}

// CancelMessage is the wire form of a cancellation request. An empty GoalID
// cancels every outstanding goal.
type CancelMessage struct {
	GoalID string `json:"goal_id"`
}

var _ navigation.MotionBackend = (*Backend)(nil)

// Backend is a navigation.MotionBackend talking to a motion executor over
// MQTT.
type Backend struct {
	cfg    Config
	client mqtt.Client
	logger golog.Logger
	clock  clock.Clock

	mu         sync.Mutex
	lastStatus navigation.ActionStatus
}

// New connects to the broker and subscribes to the executor's status topic.
func New(cfg Config, logger golog.Logger) (*Backend, error) {
	return newBackend(cfg, logger, clock.New())
}

func newBackend(cfg Config, logger golog.Logger, clk clock.Clock) (*Backend, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	b := &Backend{
		cfg:        cfg,
		logger:     logger,
		clock:      clk,
		lastStatus: navigation.StatusPending,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "cannot connect to MQTT broker")
	}
	return b, nil
}

func (b *Backend) onConnect(client mqtt.Client) {
	b.logger.Debugw("connected to broker, subscribing", "topic", b.cfg.StatusTopic)
	if token := client.Subscribe(b.cfg.StatusTopic, defaultQoS, b.onStatus); token.Wait() && token.Error() != nil {
		b.logger.Errorw("status subscription failed", "error", token.Error())
	}
}

func (b *Backend) onConnectionLost(_ mqtt.Client, err error) {
	b.logger.Warnw("connection to broker lost", "error", err)
}

func (b *Backend) onStatus(_ mqtt.Client, msg mqtt.Message) {
	var status StatusMessage
	if err := json.Unmarshal(msg.Payload(), &status); err != nil {
		b.logger.Debugw("dropping malformed status message", "error", err)
		return
	}
	mapped := navigation.StatusFromWire(status.Status)
	b.mu.Lock()
	b.lastStatus = mapped
	b.mu.Unlock()
}

// SendGoal publishes the goal on the goal topic.
func (b *Backend) SendGoal(ctx context.Context, goal navigation.Goal) error {
	payload, err := json.Marshal(GoalMessage{
		GoalID: goal.ID,
		Seq:    goal.Seq,
		X:      goal.Target.X,
		Y:      goal.Target.Y,
		Theta:  goal.Target.Theta,
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.lastStatus = navigation.StatusPending
	b.mu.Unlock()
	return b.publish(ctx, b.cfg.GoalTopic, payload)
}

// Status returns the most recent status reported on the status topic.
func (b *Backend) Status(ctx context.Context) navigation.ActionStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastStatus
}

// WaitForResult polls the reported status until it turns terminal or the
// timeout elapses.
func (b *Backend) WaitForResult(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := b.clock.Now().Add(timeout)
	for {
		if isTerminal(b.Status(ctx)) {
			return true, nil
		}
		if !b.clock.Now().Before(deadline) {
			return false, nil
		}
		if !goutils.SelectContextOrWait(ctx, statusPollInterval) {
			return false, ctx.Err()
		}
	}
}

// CancelGoal publishes a cancellation for the identified goal on the cancel
// topic.
func (b *Backend) CancelGoal(ctx context.Context, goalID string) error {
	payload, err := json.Marshal(CancelMessage{GoalID: goalID})
	if err != nil {
		return err
	}
	return b.publish(ctx, b.cfg.CancelTopic, payload)
}

// CancelAll publishes the cancel-everything request (an empty goal ID by
// convention).
func (b *Backend) CancelAll(ctx context.Context) error {
	return b.CancelGoal(ctx, "")
}

// Close disconnects from the broker.
func (b *Backend) Close(ctx context.Context) error {
	var err error
	if token := b.client.Unsubscribe(b.cfg.StatusTopic); token.Wait() && token.Error() != nil {
		err = multierr.Append(err, token.Error())
	}
	b.client.Disconnect(disconnectQuiesce)
	return err
}

func (b *Backend) publish(ctx context.Context, topic string, payload []byte) error {
	token := b.client.Publish(topic, defaultQoS, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

// isTerminal reports whether a status ends a goal's lifecycle on the wire.
func isTerminal(s navigation.ActionStatus) bool {
	switch s {
	case navigation.StatusSucceeded, navigation.StatusPreempted, navigation.StatusAborted,
		navigation.StatusRejected, navigation.StatusRecalled, navigation.StatusLost:
		return true
	default:
		return false
	}
}
