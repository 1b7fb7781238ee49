package dds

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	DeviceID string `json:"device_id"`
	Seq      uint32 `json:"sequence_number"`
}

func TestCodec_EnvelopeShape(t *testing.T) {
	c := newCodec[ping]("TMS_Heartbeat")

	payload, err := c.encode(ping{DeviceID: "abc", Seq: 7})
	require.NoError(t, err)

	assert.JSONEq(t, `{"type_name":"TMS_Heartbeat","data":{"device_id":"abc","sequence_number":7}}`, string(payload))
}

func TestCodec_Decode(t *testing.T) {
	c := newCodec[ping]("TMS_Heartbeat")

	got, err := c.decode([]byte(`{"type_name":"TMS_Heartbeat","data":{"device_id":"abc","sequence_number":4294967295}}`))
	require.NoError(t, err)
	assert.Equal(t, ping{DeviceID: "abc", Seq: 4294967295}, got)
}

func TestCodec_DecodeTypeMismatch(t *testing.T) {
	c := newCodec[ping]("TMS_Heartbeat")

	_, err := c.decode([]byte(`{"type_name":"Other","data":{}}`))
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = c.decode([]byte(`{"data":{}}`))
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestCodec_DecodeGarbage(t *testing.T) {
	c := newCodec[ping]("TMS_Heartbeat")

	_, err := c.decode([]byte("not json"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTypeMismatch))

	_, err = c.decode([]byte(`{"type_name":"TMS_Heartbeat","data":"nope"}`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTypeMismatch))
}

func TestStatusKindRouting(t *testing.T) {
	assert.True(t, ConnectionLost.forWriters())
	assert.True(t, ConnectionLost.forReaders())
	assert.True(t, PublicationFailed.forWriters())
	assert.False(t, PublicationFailed.forReaders())
	assert.False(t, SampleLost.forWriters())
	assert.True(t, SampleLost.forReaders())
}

func TestStatusEventString(t *testing.T) {
	assert.Equal(t, "Connected", NewStatusEvent(Connected, "", nil).String())
	assert.Equal(t, "ConnectionLost { tcp://broker:1883, error: EOF }",
		NewStatusEvent(ConnectionLost, "tcp://broker:1883", errors.New("EOF")).String())
	assert.Equal(t, "StatusKind(99)", StatusKind(99).String())
}

func TestEventSink_NeverBlocks(t *testing.T) {
	sink := NewEventSink(2)

	assert.True(t, sink.Emit(Connected, "", nil))
	assert.True(t, sink.Emit(ConnectionLost, "", nil))
	assert.False(t, sink.Emit(Reconnecting, "", nil))

	assert.Equal(t, Connected, (<-sink.Events()).Kind)
}

func TestParseReliability(t *testing.T) {
	r, err := ParseReliability("")
	require.NoError(t, err)
	assert.Equal(t, Reliable, r)

	r, err = ParseReliability("best_effort")
	require.NoError(t, err)
	assert.Equal(t, BestEffort, r)

	_, err = ParseReliability("sometimes")
	assert.Error(t, err)

	assert.True(t, DefaultQoS().IsReliable())
	assert.Zero(t, DefaultQoS().MaxBlockingTime)
}

func TestErrorsUnwrap(t *testing.T) {
	initErr := &InitError{Step: "Topic", Err: ErrInvalidTopic}
	assert.Equal(t, "failed to create Topic: invalid topic", initErr.Error())
	assert.True(t, errors.Is(initErr, ErrInvalidTopic))

	assert.True(t, errors.Is(&WriteError{Err: ErrWouldBlock}, ErrWouldBlock))
	assert.True(t, errors.Is(&ReadError{Err: ErrSubscriptionLost}, ErrSubscriptionLost))
}
