// Package notify is the fire-and-forget surface the core reports outcomes
// to. It never affects control flow.
package notify

import "log"

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Notifier interface {
	Notify(kind Kind, message string)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(kind Kind, message string) {
	log.Printf("[%s] %s", kind, message)
}

// Discard drops every notification; used by tests that don't care.
type Discard struct{}

func (Discard) Notify(Kind, string) {}
