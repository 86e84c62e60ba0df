package taskqueue

import (
	"bytes"
	"encoding/gob"
)

// EncodeItem gob-encodes an Item. Payload values beyond the api package's
// registered types must be registered with gob.Register by the user.
func EncodeItem(it Item) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&it); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeItem gob-decodes an Item.
func DecodeItem(data []byte) (*Item, error) {
	var it Item
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&it); err != nil {
		return nil, err
	}
	return &it, nil
}
