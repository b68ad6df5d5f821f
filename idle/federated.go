package idle

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FederatedMonitor is the simpler variant: idle directly invokes the
// expiry callback, with no periodic keep-alive ping.
type FederatedMonitor struct {
	hub       *Hub
	sessionID string
	sender    string
	timeout   time.Duration
	onExpire  ExpireFunc
	nowTime   func() time.Time
	log       zerolog.Logger

	mu           sync.Mutex
	lastActivity time.Time
	running      bool
	stop         chan struct{}
	reset        chan struct{}
	expireOnce   *sync.Once
}

var _ Monitor = (*FederatedMonitor)(nil)

// FederatedMonitorOption configures a FederatedMonitor.
type FederatedMonitorOption func(*FederatedMonitor)

// WithFederatedNowTime sets the clock (primarily for testing).
func WithFederatedNowTime(nowFunc func() time.Time) FederatedMonitorOption {
	return func(m *FederatedMonitor) {
		m.nowTime = nowFunc
	}
}

// WithFederatedMonitorLogger sets the monitor logger.
func WithFederatedMonitorLogger(log zerolog.Logger) FederatedMonitorOption {
	return func(m *FederatedMonitor) {
		m.log = log
	}
}

// NewFederatedMonitor builds the federated idle monitor.
func NewFederatedMonitor(hub *Hub, sessionID string, timeout time.Duration, onExpire ExpireFunc, options ...FederatedMonitorOption) *FederatedMonitor {
	monitor := &FederatedMonitor{
		hub:       hub,
		sessionID: sessionID,
		sender:    uuid.NewString(),
		timeout:   timeout,
		onExpire:  onExpire,
		nowTime:   time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(monitor)
	}
	return monitor
}

func (m *FederatedMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.reset = make(chan struct{}, 1)
	m.expireOnce = &sync.Once{}
	m.mu.Unlock()

	messages, cancel := m.hub.Subscribe(m.sessionID)
	go m.loop(messages, cancel)
}

func (m *FederatedMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
}

func (m *FederatedMonitor) loop(messages <-chan Message, cancel func()) {
	defer cancel()
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	for {
		select {
		case <-m.stop:
			return

		case <-timer.C:
			m.log.Debug().Msg("idle timeout reached, expiring")
			m.expire()
			return

		case <-m.reset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(m.timeout)

		case msg := <-messages:
			if msg.Sender == m.sender {
				continue
			}
			switch msg.Kind {
			case KindExpire:
				m.expire()
				return
			case KindReset:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.timeout)
			}
		}
	}
}

// OnActivity restarts the inactivity timer in this tab and, through the
// hub, in every other tab of the same session.
func (m *FederatedMonitor) OnActivity() {
	now := m.nowTime()

	m.mu.Lock()
	if !m.running || now.Sub(m.lastActivity) < activityDebounce {
		m.mu.Unlock()
		return
	}
	m.lastActivity = now
	m.mu.Unlock()

	select {
	case m.reset <- struct{}{}:
	default:
	}
	m.hub.Publish(Message{SessionID: m.sessionID, Kind: KindReset, Sender: m.sender})
}

func (m *FederatedMonitor) expire() {
	m.expireOnce.Do(func() {
		m.hub.Publish(Message{SessionID: m.sessionID, Kind: KindExpire, Sender: m.sender})
		m.onExpire()
	})
	m.Stop()
}
