package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	fieldData  = "data"
	fieldEvent = "event"
	fieldID    = "id"
	fieldRetry = "retry"
)

// Decoder reads server-sent events from a byte stream.
// It is not safe for concurrent use.
type Decoder struct {
	reader *bufio.Reader
	err    error
	// skipLF is set after a line ended with a bare \r, so that a following \n is not read as a blank line.
	skipLF bool
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	if reader, ok := r.(*bufio.Reader); ok {
		return &Decoder{reader: reader}
	}
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next complete event. Blocks without fields are skipped.
// An event still pending when the input ends is returned before io.EOF.
func (d *Decoder) Next() (*Event, error) {
	if d.err != nil {
		return nil, d.err
	}
	builder := newEventBuilder()
	for {
		line, err := d.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			d.err = err
			return nil, err
		}
		eof := err != nil
		if eof && line == "" {
			d.err = io.EOF
			if builder.empty() {
				return nil, io.EOF
			}
			return builder.build(), nil
		}
		line = strings.ToValidUTF8(line, "\uFFFD")
		if line == "" {
			if builder.empty() {
				if eof {
					d.err = io.EOF
					return nil, io.EOF
				}
				continue
			}
			return builder.build(), nil
		}
		builder.add(line)
		if eof {
			d.err = io.EOF
			if builder.empty() {
				return nil, io.EOF
			}
			return builder.build(), nil
		}
	}
}

// readLine reads up to the next \r\n, \n or \r. It never reads ahead past a terminator,
// so an event ending in a bare \r is delivered without waiting for more input.
func (d *Decoder) readLine() (string, error) {
	var line []byte
	for {
		b, err := d.reader.ReadByte()
		if err != nil {
			return string(line), err
		}
		if d.skipLF {
			d.skipLF = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			return string(line), nil
		case '\r':
			d.skipLF = true
			return string(line), nil
		}
		line = append(line, b)
	}
}

type eventBuilder struct {
	event *Event
	data  []string
}

func newEventBuilder() *eventBuilder {
	return &eventBuilder{event: &Event{}}
}

func (b *eventBuilder) empty() bool {
	return len(b.event.Fields) == 0
}

func (b *eventBuilder) add(line string) {
	if strings.HasPrefix(line, ":") {
		return // comment
	}
	index := strings.IndexByte(line, ':')
	if index == -1 {
		return
	}
	name := line[:index]
	value := strings.TrimPrefix(line[index+1:], " ")
	switch name {
	case fieldData:
		b.data = append(b.data, value)
	case fieldEvent:
		b.event.Event = value
	case fieldID:
		if strings.IndexByte(value, 0) != -1 {
			return
		}
		b.event.ID = value
	case fieldRetry:
		if !isDigits(value) {
			return
		}
		b.event.Retry = value
	}
	b.event.Fields = append(b.event.Fields, Field{Name: name, Value: value})
}

func (b *eventBuilder) build() *Event {
	b.event.Data = strings.Join(b.data, "\n")
	return b.event
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
