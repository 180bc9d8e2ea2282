package capture

// Raw event kinds reported by the capture extension.
const (
	RawClick    = "click"
	RawInput    = "input"
	RawSubmit   = "submit"
	RawPageLoad = "page_load"
	RawHistory  = "history"
)

// RawElement describes the DOM element a click landed on, as observed
// by the extension at dispatch time.
type RawElement struct {
	Tag        string  `json:"tag"`
	ID         string  `json:"id"`
	Class      string  `json:"class"`
	Type       *string `json:"type,omitempty"`
	Role       string  `json:"role,omitempty"`
	HasOnclick bool    `json:"has_onclick,omitempty"`
	Text       string  `json:"text,omitempty"`
}

// RawField describes the form control behind an input event.
type RawField struct {
	Tag         string `json:"tag"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// RawForm identifies the form behind a submit event.
type RawForm struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// RawEvent is one DOM occurrence on the wire. Type selects which of the
// optional payloads is populated: Element for clicks, Field for inputs,
// Form for submits. Page loads and history signals carry only URL and
// title. TS is milliseconds since the epoch, stamped by the extension.
type RawEvent struct {
	Type    string      `json:"type"`
	TS      int64       `json:"ts,omitempty"`
	URL     string      `json:"url"`
	Title   string      `json:"title,omitempty"`
	Element *RawElement `json:"element,omitempty"`
	Field   *RawField   `json:"field,omitempty"`
	Form    *RawForm    `json:"form,omitempty"`
}

// Batch groups raw events for a single POST. The extension batches
// bursts instead of sending one request per DOM event.
type Batch struct {
	Events []RawEvent `json:"events"`
}
