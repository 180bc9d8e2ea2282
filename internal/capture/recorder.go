// Package capture turns raw DOM events reported by the browser
// extension into audit messages. The Recorder owns the recording state
// machine; everything it emits flows through a Sink.
package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/codeweaver-pro/auditrec/internal/logger"
)

// clickTags is the allow-list of tags whose clicks are reported.
// Elements outside it still count when they carry role="button" or an
// onclick handler, which is how custom widget libraries mark buttons.
var clickTags = map[string]bool{
	"button":     true,
	"a":          true,
	"input":      true,
	"ion-button": true,
	"app-button": true,
}

// formTags are the controls whose input events are reported.
var formTags = map[string]bool{
	"input":    true,
	"textarea": true,
	"select":   true,
}

// TextLimit caps captured click text, in characters.
const TextLimit = 50

// DefaultSettle is how long a history signal may settle before the URL
// is compared against the last one seen. Single-page apps often fire
// several history updates for one logical navigation.
const DefaultSettle = 100 * time.Millisecond

// Recorder filters raw DOM events into audit messages while a session
// is active. It starts idle: events observed before Start or after Stop
// are dropped. Safe for concurrent use; the HTTP layer calls in from
// request goroutines while the navigation timer fires on its own.
type Recorder struct {
	mu        sync.Mutex
	recording bool
	sessionID string

	lastURL      string
	pendingURL   string
	pendingTitle string
	navTimer     *time.Timer
	navEpoch     int

	settle time.Duration
	sink   Sink
}

// NewRecorder returns an idle recorder delivering to sink. A settle of
// zero or below selects DefaultSettle.
func NewRecorder(sink Sink, settle time.Duration) *Recorder {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Recorder{sink: sink, settle: settle}
}

// Start begins a recording session with a fresh navigation baseline.
// Calling Start while already recording is a no-op: the current session
// keeps its ID and state.
func (r *Recorder) Start(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return
	}
	r.recording = true
	r.sessionID = sessionID
	r.lastURL = ""
	r.clearNavLocked()
}

// Stop ends the session and cancels any pending navigation check, so a
// history signal observed just before Stop cannot emit a pageChanged
// afterwards. Calling Stop while idle is a no-op.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.recording = false
	r.sessionID = ""
	r.clearNavLocked()
}

// clearNavLocked drops any pending navigation check. The epoch bump
// invalidates a settle callback that already left AfterFunc but has not
// taken the lock yet.
func (r *Recorder) clearNavLocked() {
	if r.navTimer != nil {
		r.navTimer.Stop()
		r.navTimer = nil
	}
	r.pendingURL = ""
	r.pendingTitle = ""
	r.navEpoch++
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// SessionID returns the active session ID, or "" when idle.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Observe processes one raw event. While idle every event is dropped.
// Clicks, inputs and submits that pass filtering are delivered before
// Observe returns; history signals only arm the settle timer, and page
// loads just move the navigation baseline.
func (r *Recorder) Observe(ctx context.Context, ev RawEvent) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	session := r.sessionID

	var msg *Message
	switch ev.Type {
	case RawClick:
		msg = clickMessage(ev)
	case RawInput:
		msg = inputMessage(ev)
	case RawSubmit:
		msg = submitMessage(ev)
	case RawPageLoad:
		r.lastURL = ev.URL
	case RawHistory:
		r.armNavCheckLocked(ev)
	}
	r.mu.Unlock()

	if msg != nil {
		r.deliver(ctx, session, *msg)
	}
}

// armNavCheckLocked records the candidate URL and (re)arms the settle
// timer. Re-arming means a burst of history signals resolves to a
// single check once the burst quiets down.
func (r *Recorder) armNavCheckLocked(ev RawEvent) {
	r.pendingURL = ev.URL
	r.pendingTitle = ev.Title
	if r.navTimer != nil {
		r.navTimer.Stop()
	}
	epoch := r.navEpoch
	r.navTimer = time.AfterFunc(r.settle, func() {
		r.settleNav(epoch)
	})
}

// settleNav runs on the timer goroutine once a navigation has settled.
// It emits at most one pageChanged, and only when the URL actually
// moved from the baseline.
func (r *Recorder) settleNav(epoch int) {
	r.mu.Lock()
	if !r.recording || epoch != r.navEpoch {
		r.mu.Unlock()
		return
	}
	url, title := r.pendingURL, r.pendingTitle
	r.pendingURL = ""
	r.pendingTitle = ""
	r.navTimer = nil
	if url == "" || url == r.lastURL {
		r.mu.Unlock()
		return
	}
	r.lastURL = url
	session := r.sessionID
	r.mu.Unlock()

	// Timer callbacks have no caller context; sinks bound their own work.
	r.deliver(context.Background(), session, Message{
		Action: ActionPageChanged,
		URL:    url,
		Title:  &title,
	})
}

func (r *Recorder) deliver(ctx context.Context, session string, msg Message) {
	if err := r.sink.Deliver(ctx, session, msg); err != nil {
		logger.Warn("audit sink delivery failed", "action", msg.Action, "error", err)
	}
}

func clickMessage(ev RawEvent) *Message {
	el := ev.Element
	if el == nil {
		return nil
	}
	tag := strings.ToLower(el.Tag)
	if !clickTags[tag] && el.Role != "button" && !el.HasOnclick {
		return nil
	}
	text := truncate(el.Text, TextLimit)
	return &Message{
		Action:  ActionClickDetected,
		Element: &Element{Tag: tag, ID: el.ID, Class: el.Class, Type: el.Type},
		Text:    &text,
		URL:     ev.URL,
	}
}

func inputMessage(ev RawEvent) *Message {
	f := ev.Field
	if f == nil {
		return nil
	}
	tag := strings.ToLower(f.Tag)
	if !formTags[tag] {
		return nil
	}
	return &Message{
		Action: ActionFormInteraction,
		Field: &InputField{
			Tag:         tag,
			Type:        f.Type,
			Name:        f.Name,
			ID:          f.ID,
			Placeholder: f.Placeholder,
		},
		Type: InteractionInput,
		URL:  ev.URL,
	}
}

func submitMessage(ev RawEvent) *Message {
	form := ev.Form
	if form == nil {
		return nil
	}
	return &Message{
		Action: ActionFormInteraction,
		Field:  &FormRef{FormID: form.ID, FormAction: form.Action},
		Type:   InteractionSubmit,
		URL:    ev.URL,
	}
}

// truncate returns at most limit characters of s, counting runes so a
// multi-byte character is never split.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
