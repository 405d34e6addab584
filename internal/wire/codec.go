package wire

import "github.com/hashicorp/go-msgpack/codec"

var msgpackHandle = &codec.MsgpackHandle{}

// Marshal encodes a message with the shared msgpack handle.
func Marshal(v interface{}) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

// Unmarshal decodes a message produced by Marshal.
func Unmarshal(data []byte, v interface{}) error {
	return codec.NewDecoderBytes(data, msgpackHandle).Decode(v)
}
