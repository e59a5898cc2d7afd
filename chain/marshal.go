package chain

import (
	"encoding/json"

	"github.com/songzhibin97/handlerchain/message"
)

// MarshalMessage encodes msg as the JSON wire format persisted to and
// read back from a replaystore.Store.
func MarshalMessage(msg *message.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// UnmarshalMessage decodes a stored envelope payload back into a
// Message. Used by ReplayListener to parse polled envelopes.
func UnmarshalMessage(raw []byte) (*message.Message, error) {
	var msg message.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
