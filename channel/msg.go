// Package channel implements a buffered, multi-producer multi-consumer
// message channel with flow-based close semantics.
package channel

import (
	"capnproto.org/go/capnp/v3"
)

// Which discriminates the message union.
type Which uint8

const (
	// Value carries a payload pointer.
	Value Which = iota

	// Done marks the end of a writer's stream.
	Done

	// NoMsg is returned by non-blocking reads on an empty channel.
	NoMsg
)

func (w Which) String() string {
	switch w {
	case Value:
		return "value"
	case Done:
		return "done"
	case NoMsg:
		return "noMsg"
	}

	return "invalid"
}

// Msg is the unit of exchange.  Payloads are opaque capnp pointers;
// the channel never inspects them.
type Msg struct {
	Which Which
	value capnp.Ptr
}

// Ptr wraps a capnp pointer as a value message.
func Ptr(ptr capnp.Ptr) Msg {
	return Msg{Which: Value, value: ptr}
}

// Text builds a value message holding a single text payload.
func Text[T ~string](t T) (Msg, error) {
	_, seg := capnp.NewSingleSegmentMessage(nil)

	s, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 1})
	if err != nil {
		return Msg{}, err
	}

	if err = s.SetText(0, string(t)); err != nil {
		return Msg{}, err
	}

	ptr, err := s.Ptr(0)
	if err != nil {
		return Msg{}, err
	}

	return Ptr(ptr), nil
}

// Data builds a value message holding a single data payload.
func Data[T ~[]byte](t T) (Msg, error) {
	_, seg := capnp.NewSingleSegmentMessage(nil)

	data, err := capnp.NewData(seg, []byte(t))
	if err != nil {
		return Msg{}, err
	}

	return Ptr(data.ToPtr()), nil
}

// NewDone returns the stream-terminating message.
func NewDone() Msg {
	return Msg{Which: Done}
}

// Ptr returns the payload pointer.  Zero for Done and NoMsg.
func (m Msg) Ptr() capnp.Ptr {
	return m.value
}

// Text returns the payload as text.
func (m Msg) Text() string {
	return m.value.Text()
}

// Data returns the payload as raw bytes.
func (m Msg) Data() []byte {
	return m.value.Data()
}
