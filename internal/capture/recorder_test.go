package capture

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu   sync.Mutex
	err  error
	got  []Message
	sess []string
}

func (s *memorySink) Deliver(_ context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = append(s.sess, sessionID)
	s.got = append(s.got, msg)
	return s.err
}

func (s *memorySink) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.got...)
}

func (s *memorySink) sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sess...)
}

func clickEvent(tag, id, class, text string) RawEvent {
	return RawEvent{
		Type: RawClick,
		URL:  "https://shop.test/checkout",
		Element: &RawElement{
			Tag:   tag,
			ID:    id,
			Class: class,
			Text:  text,
		},
	}
}

func inputEvent(tag string) RawEvent {
	return RawEvent{
		Type: RawInput,
		URL:  "https://shop.test/checkout",
		Field: &RawField{
			Tag:         tag,
			Type:        "email",
			Name:        "email",
			ID:          "email-input",
			Placeholder: "you@example.com",
		},
	}
}

func TestStartIsIdempotent(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)

	r.Start("session-one")
	r.Start("session-two")

	assert.Equal(t, "session-one", r.SessionID())

	r.Observe(context.Background(), clickEvent("button", "go", "", "Go"))
	require.Len(t, sink.messages(), 1)
	assert.Equal(t, []string{"session-one"}, sink.sessions())
}

func TestStopIsIdempotent(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)

	r.Stop() // idle stop is a no-op
	assert.False(t, r.Recording())

	r.Start("s")
	r.Stop()
	r.Stop()
	assert.False(t, r.Recording())
	assert.Equal(t, "", r.SessionID())
}

func TestIdleDropsEvents(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)

	ctx := context.Background()
	r.Observe(ctx, clickEvent("button", "go", "", "Go"))
	r.Observe(ctx, inputEvent("input"))
	r.Observe(ctx, RawEvent{Type: RawSubmit, URL: "https://a.test", Form: &RawForm{ID: "f", Action: "/x"}})
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://a.test/next"})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.messages())
}

func TestNoEmissionAfterStop(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)

	r.Start("s")
	r.Stop()
	r.Observe(context.Background(), clickEvent("button", "go", "", "Go"))

	assert.Empty(t, sink.messages())
}

func TestClickAllowList(t *testing.T) {
	tests := []struct {
		name    string
		element RawElement
		emitted bool
	}{
		{"button", RawElement{Tag: "button"}, true},
		{"anchor", RawElement{Tag: "a"}, true},
		{"input", RawElement{Tag: "input"}, true},
		{"ion-button", RawElement{Tag: "ion-button"}, true},
		{"app-button", RawElement{Tag: "app-button"}, true},
		{"uppercase tag normalized", RawElement{Tag: "BUTTON"}, true},
		{"plain div", RawElement{Tag: "div"}, false},
		{"plain span", RawElement{Tag: "span"}, false},
		{"div with button role", RawElement{Tag: "div", Role: "button"}, true},
		{"span with onclick", RawElement{Tag: "span", HasOnclick: true}, true},
		{"div with other role", RawElement{Tag: "div", Role: "tab"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{}
			r := NewRecorder(sink, time.Millisecond)
			r.Start("s")

			r.Observe(context.Background(), RawEvent{
				Type:    RawClick,
				URL:     "https://shop.test",
				Element: &tt.element,
			})

			if tt.emitted {
				require.Len(t, sink.messages(), 1)
				assert.Equal(t, ActionClickDetected, sink.messages()[0].Action)
			} else {
				assert.Empty(t, sink.messages())
			}
		})
	}
}

func TestClickTextTruncated(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)
	r.Start("s")

	long := strings.Repeat("x", 80)
	r.Observe(context.Background(), clickEvent("button", "go", "", long))

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Text)
	assert.Len(t, []rune(*msgs[0].Text), TextLimit)
	assert.Equal(t, strings.Repeat("x", 50), *msgs[0].Text)
}

func TestClickTextTruncatesRunesNotBytes(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)
	r.Start("s")

	r.Observe(context.Background(), clickEvent("button", "go", "", strings.Repeat("é", 60)))

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, strings.Repeat("é", 50), *msgs[0].Text)
}

func TestInputFieldFiltering(t *testing.T) {
	for _, tag := range []string{"input", "textarea", "select"} {
		sink := &memorySink{}
		r := NewRecorder(sink, time.Millisecond)
		r.Start("s")

		r.Observe(context.Background(), inputEvent(tag))

		msgs := sink.messages()
		require.Len(t, msgs, 1, "tag %s", tag)
		assert.Equal(t, ActionFormInteraction, msgs[0].Action)
		assert.Equal(t, InteractionInput, msgs[0].Type)
	}

	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)
	r.Start("s")
	r.Observe(context.Background(), inputEvent("div"))
	assert.Empty(t, sink.messages())
}

func TestSubmitCarriesFormRef(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)
	r.Start("s")

	r.Observe(context.Background(), RawEvent{
		Type: RawSubmit,
		URL:  "https://shop.test/signup",
		Form: &RawForm{ID: "signup", Action: "/api/signup"},
	})

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, InteractionSubmit, msgs[0].Type)
	ref, ok := msgs[0].Field.(*FormRef)
	require.True(t, ok)
	assert.Equal(t, "signup", ref.FormID)
	assert.Equal(t, "/api/signup", ref.FormAction)
}

func TestMalformedEventsDropped(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, time.Millisecond)
	r.Start("s")

	ctx := context.Background()
	r.Observe(ctx, RawEvent{Type: RawClick, URL: "https://a.test"})
	r.Observe(ctx, RawEvent{Type: RawInput, URL: "https://a.test"})
	r.Observe(ctx, RawEvent{Type: RawSubmit, URL: "https://a.test"})
	r.Observe(ctx, RawEvent{Type: "unknown", URL: "https://a.test"})

	assert.Empty(t, sink.messages())
}

func TestNavigationEmitsOncePerChange(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, 5*time.Millisecond)
	r.Start("s")

	ctx := context.Background()
	r.Observe(ctx, RawEvent{Type: RawPageLoad, URL: "https://app.test/inbox"})
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://app.test/settings", Title: "Settings"})
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://app.test/settings", Title: "Settings"})

	time.Sleep(120 * time.Millisecond)

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, ActionPageChanged, msgs[0].Action)
	assert.Equal(t, "https://app.test/settings", msgs[0].URL)
	require.NotNil(t, msgs[0].Title)
	assert.Equal(t, "Settings", *msgs[0].Title)
}

func TestNavigationSameURLSuppressed(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, 5*time.Millisecond)
	r.Start("s")

	ctx := context.Background()
	r.Observe(ctx, RawEvent{Type: RawPageLoad, URL: "https://app.test/inbox"})
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://app.test/inbox"})

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, sink.messages())
}

func TestNavigationBurstCollapses(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, 40*time.Millisecond)
	r.Start("s")

	ctx := context.Background()
	r.Observe(ctx, RawEvent{Type: RawPageLoad, URL: "https://app.test/a"})
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://app.test/b"})
	time.Sleep(10 * time.Millisecond)
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://app.test/c", Title: "C"})

	time.Sleep(200 * time.Millisecond)

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "https://app.test/c", msgs[0].URL)
}

func TestStopCancelsPendingNavigation(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, 30*time.Millisecond)
	r.Start("s")

	ctx := context.Background()
	r.Observe(ctx, RawEvent{Type: RawPageLoad, URL: "https://app.test/a"})
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://app.test/b"})
	r.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, sink.messages())
}

func TestRestartDoesNotInheritPendingNavigation(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, 30*time.Millisecond)

	ctx := context.Background()
	r.Start("first")
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://app.test/stale"})
	r.Stop()
	r.Start("second")

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, sink.messages())
}

func TestSinkErrorKeepsRecording(t *testing.T) {
	sink := &memorySink{err: assert.AnError}
	r := NewRecorder(sink, time.Millisecond)
	r.Start("s")

	ctx := context.Background()
	r.Observe(ctx, clickEvent("button", "one", "", "One"))
	r.Observe(ctx, clickEvent("button", "two", "", "Two"))

	assert.True(t, r.Recording())
	assert.Len(t, sink.messages(), 2)
}

func TestFullSessionScenario(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, 5*time.Millisecond)

	ctx := context.Background()
	r.Start("scenario")
	r.Observe(ctx, RawEvent{Type: RawPageLoad, URL: "https://shop.test/checkout"})
	r.Observe(ctx, clickEvent("button", "submit-btn", "", "Submit Order"))
	r.Observe(ctx, inputEvent("input"))
	r.Observe(ctx, RawEvent{Type: RawHistory, URL: "https://shop.test/confirmation", Title: "Order Confirmed"})

	time.Sleep(120 * time.Millisecond)
	r.Stop()
	r.Observe(ctx, clickEvent("button", "submit-btn", "", "Submit Order"))

	msgs := sink.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, ActionClickDetected, msgs[0].Action)
	assert.Equal(t, ActionFormInteraction, msgs[1].Action)
	assert.Equal(t, ActionPageChanged, msgs[2].Action)

	el := msgs[0].Element
	require.NotNil(t, el)
	assert.Equal(t, "button", el.Tag)
	assert.Equal(t, "submit-btn", el.ID)
	assert.Equal(t, "", el.Class)
	assert.Nil(t, el.Type)
	assert.Equal(t, "Submit Order", *msgs[0].Text)

	for _, session := range sink.sessions() {
		assert.Equal(t, "scenario", session)
	}
}
