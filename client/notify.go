package client

import "log/slog"

// Level is the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier surfaces transient messages to whoever is watching
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to a Notifier
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(level Level, message string) {
	if n.Logger == nil {
		return
	}
	n.Logger.Info("notification", "level", string(level), "message", message)
}

// MultiNotifier fans a notification out to several notifiers
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(level Level, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(level, message)
		}
	}
}
