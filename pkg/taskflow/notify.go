package taskflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/taskflow/pkg/taskflow/event"
	"github.com/randalmurphal/taskflow/pkg/taskflow/registry"
)

// NotificationType identifies a lifecycle notification.
type NotificationType string

// Notification types, in the order a run can emit them.
const (
	RunStarted    NotificationType = "run.started"
	StateChanged  NotificationType = "task.state_changed"
	ErrorOccurred NotificationType = "error.occurred"
	RunAborted    NotificationType = "run.aborted"
	RunCompleted  NotificationType = "run.completed"
)

// Error sources that are not task names.
const (
	SourceRun     = "run"
	SourceDiagram = "diagram"
)

// Notification describes one lifecycle event of a run.
//
// For one run, notifications arrive in this order: RunStarted, then for
// every step a StateChanged immediately before the step runs (followed by an
// ErrorOccurred if the step fails or its transition is rejected), then
// RunAborted if the run was cancelled, and RunCompleted last. Setup errors
// produce a single ErrorOccurred and nothing else.
type Notification struct {
	Type  NotificationType
	RunID string

	// Task and Successors are set for StateChanged.
	Task       string
	Successors []string

	// Source and Err are set for ErrorOccurred. Source is the failing task,
	// SourceRun for setup and run-level errors, or SourceDiagram.
	Source string
	Err    error

	Timestamp time.Time
}

// Listener receives notifications. Notify is called synchronously on the
// run's goroutine, so a slow listener slows the run.
type Listener interface {
	Notify(n Notification)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(n Notification)

// Notify implements Listener.
func (f ListenerFunc) Notify(n Notification) {
	f(n)
}

// Subscribe registers l for every future run of the flow and for diagram
// errors. The returned function removes the subscription.
func (f *Flow[P]) Subscribe(l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}
	id := f.listenerID.Add(1)
	f.listeners.Register(id, l)

	var once sync.Once
	return func() {
		once.Do(func() { f.listeners.Delete(id) })
	}
}

// subscribers returns flow listeners in subscription order.
func (f *Flow[P]) subscribers() []Listener {
	ids := registry.SortedKeys(f.listeners, func(a, b uint64) bool { return a < b })
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		if l, ok := f.listeners.Get(id); ok {
			out = append(out, l)
		}
	}
	return out
}

// notifier delivers notifications of one run to a fixed listener list.
type notifier struct {
	runID     string
	listeners []Listener
	logger    *slog.Logger
}

func newNotifier(runID string, logger *slog.Logger, groups ...[]Listener) *notifier {
	n := &notifier{runID: runID, logger: logger}
	for _, g := range groups {
		n.listeners = append(n.listeners, g...)
	}
	return n
}

func (n *notifier) emit(note Notification) {
	note.RunID = n.runID
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now()
	}
	for _, l := range n.listeners {
		n.deliver(l, note)
	}
}

// deliver isolates the run from a panicking listener.
func (n *notifier) deliver(l Listener, note Notification) {
	defer func() {
		if r := recover(); r != nil && n.logger != nil {
			n.logger.Error("listener panicked",
				slog.String("notification", string(note.Type)),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	l.Notify(note)
}

func (n *notifier) stateChanged(task string, successors []string) {
	n.emit(Notification{
		Type:       StateChanged,
		Task:       task,
		Successors: append([]string(nil), successors...),
	})
}

func (n *notifier) reportError(source string, err error) {
	n.emit(Notification{Type: ErrorOccurred, Source: source, Err: err})
}

// History records every notification it receives. It is safe for
// concurrent use and is the usual way to find out why a run stopped.
type History struct {
	mu    sync.Mutex
	notes []Notification
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{}
}

// Notify implements Listener.
func (h *History) Notify(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notes = append(h.notes, n)
}

// Notifications returns a copy of everything recorded.
func (h *History) Notifications() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification(nil), h.notes...)
}

// Types returns the recorded notification types in order.
func (h *History) Types() []NotificationType {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]NotificationType, len(h.notes))
	for i, n := range h.notes {
		out[i] = n.Type
	}
	return out
}

// Errors returns the errors of every ErrorOccurred notification.
func (h *History) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []error
	for _, n := range h.notes {
		if n.Type == ErrorOccurred {
			out = append(out, n.Err)
		}
	}
	return out
}

// Visited returns the tasks of every StateChanged notification in order.
func (h *History) Visited() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	for _, n := range h.notes {
		if n.Type == StateChanged {
			out = append(out, n.Task)
		}
	}
	return out
}

// Reset discards everything recorded.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notes = nil
}

// NotificationPayload is the event payload published by BusListener.
type NotificationPayload struct {
	Task       string   `json:"task,omitempty"`
	Successors []string `json:"successors,omitempty"`
	Source     string   `json:"source,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// EventSource is the source of events published by BusListener.
const EventSource = "taskflow"

// BusListener publishes every notification on bus as an
// event.BaseEvent[NotificationPayload]. The event type is the notification
// type and the correlation id is the run id. Publish failures are logged.
func BusListener(bus event.Bus) Listener {
	return ListenerFunc(func(n Notification) {
		payload := NotificationPayload{
			Task:       n.Task,
			Successors: n.Successors,
			Source:     n.Source,
		}
		if n.Err != nil {
			payload.Error = n.Err.Error()
		}

		evt := event.New(string(n.Type), EventSource, payload,
			event.WithCorrelationID(n.RunID),
			event.WithTimestamp(n.Timestamp),
		)
		if err := bus.Publish(context.Background(), evt); err != nil {
			slog.Default().Warn("publish notification failed",
				slog.String("run_id", n.RunID),
				slog.String("type", string(n.Type)),
				slog.String("error", err.Error()),
			)
		}
	})
}
