package cell

import (
	"github.com/ugorji/go/codec"
)

// msgpackHandle is the canonical encoding used for hashing and for the wire.
// Canonical mode guarantees that encode(decode(b)) == b, which the
// content-addressing scheme relies on.
func msgpackHandle() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	h.Canonical = true
	return h
}

var handle = msgpackHandle()

// Marshal returns the canonical msgpack encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, handle).Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

// Unmarshal decodes the canonical msgpack encoding into v.
func Unmarshal(data []byte, v interface{}) error {
	return codec.NewDecoderBytes(data, handle).Decode(v)
}
