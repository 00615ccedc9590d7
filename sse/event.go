package sse

import "strings"

// Field is a single `name: value` line of an event block.
type Field struct {
	Name  string
	Value string
}

// Event represents a server-sent event (streaming) message.
type Event struct {
	ID    string
	Event string
	Data  string
	// Retry is the raw reconnection time announced by the server, if any.
	Retry string
	// Fields holds every field of the block in arrival order, data lines included.
	Fields []Field
}

// Name returns the event type, defaulting to "message" as browsers do.
func (e *Event) Name() string {
	if e.Event == "" {
		return "message"
	}
	return e.Event
}

// Get returns the last value of the named field.
func (e *Event) Get(name string) (string, bool) {
	for i := len(e.Fields) - 1; i >= 0; i-- {
		if e.Fields[i].Name == name {
			return e.Fields[i].Value, true
		}
	}
	return "", false
}

// HasData reports whether the block carried at least one data line.
func (e *Event) HasData() bool {
	_, ok := e.Get("data")
	return ok
}

// String renders the event back into wire form.
func (e *Event) String() string {
	builder := strings.Builder{}
	for _, field := range e.Fields {
		builder.WriteString(field.Name)
		builder.WriteString(": ")
		builder.WriteString(field.Value)
		builder.WriteByte('\n')
	}
	builder.WriteByte('\n')
	return builder.String()
}
