package mcpsession

import (
	"bytes"
	"errors"

	"github.com/goccy/go-json"
)

// Batch represents a JSON-RPC 2.0 batch: servers may answer a single post with an array of frames.
type Batch []json.RawMessage

// IsBatch reports whether data holds a JSON array.
func IsBatch(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// UnmarshalJSON is a custom JSON unmarshaler for the Batch type
func (b *Batch) UnmarshalJSON(data []byte) error {
	if !IsBatch(data) {
		return errors.New("invalid batch: not an array")
	}
	var frames []json.RawMessage
	if err := json.Unmarshal(data, &frames); err != nil {
		return err
	}
	// an empty array is not allowed as per the specs
	if len(frames) == 0 {
		return errors.New("invalid batch: empty array")
	}
	*b = frames
	return nil
}

// Messages decodes every frame of the batch.
func (b Batch) Messages() ([]*Message, error) {
	ret := make([]*Message, 0, len(b))
	for _, frame := range b {
		message, err := DecodeMessage(frame)
		if err != nil {
			return nil, err
		}
		ret = append(ret, message)
	}
	return ret, nil
}
