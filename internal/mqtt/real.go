package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/logic"
)

const (
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Root     string

	// OnSchedule receives updates from the control and schedule topics.
	// Nil disables the subscriptions.
	OnSchedule ScheduleHandler

	Log *logger.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed in order on reconnect.
type RealPublisher struct {
	client     paho.Client
	topics     Topics
	onSchedule ScheduleHandler
	log        *logger.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher starts connecting to the broker in the background and
// returns immediately. The broker keeps a retained "offline" will.
func NewRealPublisher(o Options) *RealPublisher {
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	p := &RealPublisher{
		topics:     NewTopics(o.Root),
		onSchedule: o.OnSchedule,
		log:        o.Log,
		buf:        newRingBuffer(bufferCapacity, o.Log),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(p.topics.Will, WillPayload, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnw("mqtt connection lost", "err", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// onConnect runs on every (re)connect: it marks the device online,
// resubscribes and replays buffered messages.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.log.Infow("mqtt connected")
	if err := wait(c.Publish(p.topics.Will, 1, true, OnlinePayload)); err != nil {
		p.log.Warnw("mqtt online status", "err", err)
	}

	if p.onSchedule != nil {
		filters := map[string]byte{p.topics.Control: 1, p.topics.Schedule: 1}
		if err := wait(c.SubscribeMultiple(filters, p.handleMessage)); err != nil {
			p.log.Errorw("mqtt subscribe", "err", err)
		}
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()
	if len(pending) > 0 {
		p.log.Infow("mqtt replaying buffered messages", "count", len(pending))
	}
	for _, m := range pending {
		if err := wait(c.Publish(m.topic, m.qos, m.retained, m.payload)); err != nil {
			p.log.Warnw("mqtt replay", "topic", m.topic, "err", err)
		}
	}
}

func (p *RealPublisher) handleMessage(_ paho.Client, m paho.Message) {
	field, ok := ParseScheduleTopic(m.Topic())
	if !ok {
		p.log.Debugw("mqtt ignoring topic", "topic", m.Topic())
		return
	}
	p.onSchedule(field, string(m.Payload()))
}

// Publish sends an outcome to the status topic.
func (p *RealPublisher) Publish(outcome logic.Outcome) error {
	payload, err := FormatPayload(outcome)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topics.Status, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 so shutdown events are delivered before disconnect.
	return p.send(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// PublishSchedule sends the retained schedule copy.
func (p *RealPublisher) PublishSchedule(sched logic.Schedule) error {
	payload, err := FormatSchedulePayload(sched)
	if err != nil {
		return fmt.Errorf("format schedule payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topics.ScheduleState, payload: payload, qos: 1, retained: true})
}

func (p *RealPublisher) send(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	if err := wait(p.client.Publish(m.topic, m.qos, m.retained, m.payload)); err != nil {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

func wait(t paho.Token) error {
	if !t.WaitTimeout(publishTimeout) {
		return errors.New("timeout")
	}
	return t.Error()
}
