package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

const envelopeVersion = 1

// envelope wraps every cached payload. Kind is the Go type name of the value
// so a reader never decodes one endpoint's payload as another's.
type envelope struct {
	Version int                `msgpack:"v"`
	Kind    string             `msgpack:"kind"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

func kindOf(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "nil"
	}
	return t.String()
}

// Encode serializes value into a versioned envelope. Struct fields are keyed
// by their json tag names.
func Encode(value any) ([]byte, error) {
	payload, err := marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache payload: %w", err)
	}
	return marshal(envelope{
		Version: envelopeVersion,
		Kind:    kindOf(value),
		Payload: payload,
	})
}

// Decode is the strict inverse of Encode: unknown fields, trailing bytes, a
// foreign version or a kind other than dst's all fail with ErrMalformedEntry.
func Decode(data []byte, dst any) error {
	var env envelope
	if err := unmarshalStrict(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if env.Version != envelopeVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedEntry, env.Version)
	}
	if want := kindOf(dst); env.Kind != want {
		return fmt.Errorf("%w: kind %q, want %q", ErrMalformedEntry, env.Kind, want)
	}
	if err := unmarshalStrict(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	return nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalStrict(data []byte, dst any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after value")
	}
	return nil
}
