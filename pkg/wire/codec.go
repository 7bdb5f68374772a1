package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Codec errors.
var (
	// ErrUnknownFrame indicates a frame type this codec does not know.
	ErrUnknownFrame = errors.New("unknown frame type")

	// ErrInvalidFrame indicates a frame that could not be decoded.
	ErrInvalidFrame = errors.New("invalid frame")
)

// encMode is the CBOR encoder mode for relay frames.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for relay frames.
var decMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configure decoder to be lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // Ignore duplicate keys (last wins)
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// envelope is the outer map of every frame.
type envelope struct {
	Type FrameType       `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}

// Encode encodes a frame to CBOR bytes.
func Encode(f Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	body, err := Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s body: %w", f.FrameType(), err)
	}
	return Marshal(envelope{Type: f.FrameType(), Body: body})
}

// Decode decodes CBOR bytes into the concrete frame for its type.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	f := newFrame(env.Type)
	if f == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrame, env.Type)
	}
	if len(env.Body) > 0 {
		if err := Unmarshal(env.Body, f); err != nil {
			return nil, fmt.Errorf("%w: %s body: %v", ErrInvalidFrame, env.Type, err)
		}
	}
	return f, nil
}

// PeekFrameType examines CBOR data to determine the frame type
// without decoding the body.
func PeekFrameType(data []byte) (FrameType, error) {
	var peek struct {
		Type FrameType `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return 0, fmt.Errorf("failed to peek frame: %w", err)
	}
	if !peek.Type.IsValid() {
		return peek.Type, fmt.Errorf("%w: %d", ErrUnknownFrame, peek.Type)
	}
	return peek.Type, nil
}

// IsControl reports whether data is a ping, pong or close frame.
func IsControl(data []byte) bool {
	t, err := PeekFrameType(data)
	return err == nil && t.IsControl()
}

// Equal compares two values by their CBOR encoding.
func Equal(a, b any) bool {
	dataA, errA := Marshal(a)
	dataB, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}
