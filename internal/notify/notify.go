// internal/notify/notify.go
package notify

import (
	"time"

	"go.uber.org/zap"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is a user-facing message emitted by the engine.
type Notification struct {
	Level       Level
	Title       string
	Message     string
	ExplorerURL string
	Duration    time.Duration
	At          time.Time
}

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(n Notification)
}

// Option customizes a notification before it is dispatched.
type Option func(*Notification)

// WithExplorerLink attaches a block explorer URL.
func WithExplorerLink(url string) Option {
	return func(n *Notification) { n.ExplorerURL = url }
}

// WithDuration sets how long the notification should be displayed.
func WithDuration(d time.Duration) Option {
	return func(n *Notification) { n.Duration = d }
}

// Dispatcher is the convenience front-end the engine components use.
type Dispatcher struct {
	sink Notifier
}

func NewDispatcher(sink Notifier) *Dispatcher {
	return &Dispatcher{sink: sink}
}

func (d *Dispatcher) send(level Level, title, message string, opts ...Option) {
	if d == nil || d.sink == nil {
		return
	}
	n := Notification{
		Level:   level,
		Title:   title,
		Message: message,
		At:      time.Now(),
	}
	for _, opt := range opts {
		opt(&n)
	}
	d.sink.Notify(n)
}

func (d *Dispatcher) Success(title, message string, opts ...Option) {
	d.send(LevelSuccess, title, message, opts...)
}

func (d *Dispatcher) Error(title, message string, opts ...Option) {
	d.send(LevelError, title, message, opts...)
}

func (d *Dispatcher) Warning(title, message string, opts ...Option) {
	d.send(LevelWarning, title, message, opts...)
}

func (d *Dispatcher) Info(title, message string, opts ...Option) {
	d.send(LevelInfo, title, message, opts...)
}

// ZapSink logs notifications through a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("notify")}
}

func (s *ZapSink) Notify(n Notification) {
	fields := []zap.Field{
		zap.String("title", n.Title),
	}
	if n.ExplorerURL != "" {
		fields = append(fields, zap.String("explorer_url", n.ExplorerURL))
	}
	switch n.Level {
	case LevelError:
		s.logger.Error(n.Message, fields...)
	case LevelWarning:
		s.logger.Warn(n.Message, fields...)
	default:
		s.logger.Info(n.Message, fields...)
	}
}

// ChannelSink buffers notifications for a UI event loop. When the buffer is
// full the oldest entry is dropped rather than blocking the engine.
type ChannelSink struct {
	ch chan Notification
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 32
	}
	return &ChannelSink{ch: make(chan Notification, buffer)}
}

func (s *ChannelSink) Notify(n Notification) {
	for {
		select {
		case s.ch <- n:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// C exposes the notification stream for consumption.
func (s *ChannelSink) C() <-chan Notification {
	return s.ch
}

// Tee fans a notification out to multiple sinks.
type Tee []Notifier

func (t Tee) Notify(n Notification) {
	for _, sink := range t {
		if sink != nil {
			sink.Notify(n)
		}
	}
}
