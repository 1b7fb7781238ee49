package dds

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// envelope is the wire shape of every sample.
type envelope[T any] struct {
	TypeName string `json:"type_name"`
	Data     T      `json:"data"`
}

type envelopeHeader struct {
	TypeName string `json:"type_name"`
}

type codec[T any] struct {
	typeName string
	api      sonic.API
}

func newCodec[T any](typeName string) codec[T] {
	return codec[T]{typeName: typeName, api: sonic.ConfigStd}
}

func (c codec[T]) encode(v T) ([]byte, error) {
	payload, err := c.api.Marshal(envelope[T]{TypeName: c.typeName, Data: v})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s sample: %w", c.typeName, err)
	}
	return payload, nil
}

// decode returns ErrTypeMismatch when the payload is a well-formed
// envelope for another type.
func (c codec[T]) decode(payload []byte) (T, error) {
	var zero T

	var header envelopeHeader
	if err := c.api.Unmarshal(payload, &header); err != nil {
		return zero, fmt.Errorf("failed to deserialize sample: %w", err)
	}
	if header.TypeName != c.typeName {
		return zero, fmt.Errorf("%w: got %q, want %q", ErrTypeMismatch, header.TypeName, c.typeName)
	}

	var env envelope[T]
	if err := c.api.Unmarshal(payload, &env); err != nil {
		return zero, fmt.Errorf("failed to deserialize %s sample: %w", c.typeName, err)
	}
	return env.Data, nil
}
