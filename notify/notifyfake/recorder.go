package notifyfake

import (
	"sync"

	"github.com/jrsteele09/go-vault-session/notify"
)

var _ notify.Notifier = (*Recorder)(nil)

type Message struct {
	Level   notify.Level
	Message string
}

// Recorder keeps every notification and renewing toggle for assertions.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	renewing []bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(level notify.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Level: level, Message: message})
}

func (r *Recorder) Renewing(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renewing = append(r.renewing, active)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// RenewingSignals returns the indicator toggles in the order they happened.
func (r *Recorder) RenewingSignals() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.renewing...)
}
