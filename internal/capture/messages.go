package capture

import "time"

// Actions carried by outbound audit messages.
const (
	ActionClickDetected   = "clickDetected"
	ActionFormInteraction = "formInteraction"
	ActionPageChanged     = "pageChanged"
)

// Interaction kinds for formInteraction messages.
const (
	InteractionInput  = "input"
	InteractionSubmit = "submit"
)

// Element identifies the clicked element in a clickDetected message.
// Type mirrors the HTML type attribute and serializes as null when the
// attribute is absent, so consumers can tell "no attribute" from "".
type Element struct {
	Tag   string  `json:"tag"`
	ID    string  `json:"id"`
	Class string  `json:"class"`
	Type  *string `json:"type"`
}

// InputField is the field payload of an input interaction.
type InputField struct {
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
}

// FormRef is the field payload of a submit interaction.
type FormRef struct {
	FormID     string `json:"formId"`
	FormAction string `json:"formAction"`
}

// Message is one outbound audit message. The action determines which
// fields are set:
//
//	clickDetected:   element, text, url
//	formInteraction: field (*InputField or *FormRef), type, url
//	pageChanged:     url, title
//
// Unset fields are omitted from the JSON so each action serializes to
// exactly its wire shape.
type Message struct {
	Action  string   `json:"action"`
	Element *Element `json:"element,omitempty"`
	Text    *string  `json:"text,omitempty"`
	Field   any      `json:"field,omitempty"`
	Type    string   `json:"type,omitempty"`
	URL     string   `json:"url"`
	Title   *string  `json:"title,omitempty"`
}

// Envelope wraps a message with its session and receipt time for
// consumers outside the message contract itself: the relay channel and
// session exports both ship envelopes.
type Envelope struct {
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Message   Message   `json:"message"`
}
