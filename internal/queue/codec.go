package queue

import (
	"bytes"
	"encoding/gob"

	"github.com/perplab/perpengine/internal/perrors"
)

// slot holds one ring-buffer entry: an occupied flag, the encoded length,
// and a fixed-size data region. The payload is framed with a length prefix
// the way the source's EventSlot/request slots are, but the byte contents
// themselves are gob-encoded Go values rather than a hand-rolled struct
// cast, since this repo has no unsafe byte-layout requirement at runtime
// (queues are held in memory only; the store does not persist them).
type slot struct {
	occupied bool
	len      int
	data     []byte
}

func newSlot(slotLen int) slot {
	return slot{data: make([]byte, slotLen)}
}

func encodeInto(s *slot, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return perrors.ErrSerializationFailed
	}
	if buf.Len() > len(s.data) {
		return perrors.ErrSerializationFailed
	}
	copy(s.data, buf.Bytes())
	for i := buf.Len(); i < len(s.data); i++ {
		s.data[i] = 0
	}
	s.occupied = true
	s.len = buf.Len()
	return nil
}

func decodeFrom(s slot, v any) error {
	if !s.occupied {
		return perrors.ErrQueueEmpty
	}
	if s.len <= 0 || s.len > len(s.data) {
		return perrors.ErrDeserializationFailed
	}
	if err := gob.NewDecoder(bytes.NewReader(s.data[:s.len])).Decode(v); err != nil {
		return perrors.ErrDeserializationFailed
	}
	return nil
}
