package protocol

import (
	"encoding/json"
	"fmt"
)

// MaxRecordBytes bounds one JSON record decoded from the host.
const MaxRecordBytes = 16 * 1024 * 1024

func DecodeSnapshot(data []byte) (Snapshot, error) {
	if len(data) > MaxRecordBytes {
		return Snapshot{}, ErrPayloadTooLarge
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: snapshot: %v", ErrInvalidRecord, err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func DecodeChange(data []byte) (Change, error) {
	if len(data) > MaxRecordBytes {
		return Change{}, ErrPayloadTooLarge
	}
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, fmt.Errorf("%w: change: %v", ErrInvalidRecord, err)
	}
	if err := c.Validate(); err != nil {
		return Change{}, err
	}
	return c, nil
}

func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func EncodeChange(c Change) ([]byte, error) {
	return json.Marshal(c)
}
