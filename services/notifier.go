package services

import (
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"statistics-workflow-api/config"

	"github.com/google/uuid"
)

// StatusChangedEvent is broadcast after a workflow action commits so dependent
// screens can re-query their status and access.
type StatusChangedEvent struct {
	EventID      string    `json:"event_id"`
	ScreenCode   string    `json:"screen_code"`
	Action       Action    `json:"action"`
	FromStatusID int       `json:"from_status_id"`
	ToStatusID   int       `json:"to_status_id"`
	ToStatusName string    `json:"to_status_name"`
	AssignedRole Role      `json:"assigned_role"`
	ActorUserID  int       `json:"actor_user_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func newStatusChangedEvent(screen string, t Transition, statuses *StatusRegistry, actor Actor, at time.Time) StatusChangedEvent {
	return StatusChangedEvent{
		EventID:      uuid.NewString(),
		ScreenCode:   screen,
		Action:       t.Action,
		FromStatusID: t.From,
		ToStatusID:   t.To,
		ToStatusName: statuses.Name(t.To),
		AssignedRole: AssignedRole(t.To),
		ActorUserID:  actor.UserID,
		OccurredAt:   at,
	}
}

// Notifier receives status-changed events. Publish must not block.
type Notifier interface {
	Publish(event StatusChangedEvent)
}

// Notifiers fans an event out to several notifiers.
type Notifiers []Notifier

func (n Notifiers) Publish(event StatusChangedEvent) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.Publish(event)
		}
	}
}

// Broadcaster delivers events to in-process subscribers such as SSE streams.
// A subscriber whose buffer is full misses the event rather than stalling the publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan StatusChangedEvent
	buffer      int
	closed      bool
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subscribers: make(map[string]chan StatusChangedEvent),
		buffer:      buffer,
	}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
// After Close, Subscribe hands out an already closed channel.
func (b *Broadcaster) Subscribe() (<-chan StatusChangedEvent, func()) {
	id := uuid.NewString()
	ch := make(chan StatusChangedEvent, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Close ends every open subscription so streaming handlers return.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *Broadcaster) Publish(event StatusChangedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			config.Log.WithField("subscriber", id).WithField("event_id", event.EventID).
				Warn("status event dropped for slow subscriber")
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MailSender is satisfied by config.Mailer.
type MailSender interface {
	SendMail(to []string, subject, html string) error
}

// MailNotifier emails the users of the role a screen has just been assigned to.
// Delivery runs in the background and failures are only logged.
type MailNotifier struct {
	directory *UserDirectory
	sender    MailSender
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewMailNotifier(directory *UserDirectory, sender MailSender) *MailNotifier {
	return &MailNotifier{
		directory: directory,
		sender:    sender,
		timeout:   30 * time.Second,
	}
}

func (m *MailNotifier) Publish(event StatusChangedEvent) {
	if event.AssignedRole == RoleNone || event.Action == ActionAdminReset {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		logger := config.Log.WithField("event_id", event.EventID).WithField("screen_code", event.ScreenCode)
		recipients, err := m.directory.EmailsForRole(ctx, event.AssignedRole)
		if err != nil {
			logger.WithError(err).Warn("failed to resolve notification recipients")
			return
		}
		if len(recipients) == 0 {
			return
		}
		subject, body := renderStatusMail(event)
		if err := m.sender.SendMail(recipients, subject, body); err != nil {
			logger.WithError(err).Warn("failed to send status notification mail")
			return
		}
		logger.WithField("recipients", len(recipients)).Debug("status notification mail sent")
	}()
}

// Wait blocks until in-flight deliveries finish.
func (m *MailNotifier) Wait() {
	m.wg.Wait()
}

func renderStatusMail(event StatusChangedEvent) (string, string) {
	subject := fmt.Sprintf("[%s] %s", event.ScreenCode, event.ToStatusName)
	body := fmt.Sprintf(
		"<p>Screen <strong>%s</strong> is now <strong>%s</strong> after %s.</p><p>It is waiting for action by the %s.</p>",
		template.HTMLEscapeString(event.ScreenCode),
		template.HTMLEscapeString(event.ToStatusName),
		template.HTMLEscapeString(string(event.Action)),
		template.HTMLEscapeString(event.AssignedRole.String()),
	)
	return subject, body
}
