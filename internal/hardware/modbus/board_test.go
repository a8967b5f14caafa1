package modbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/pkg/types"
)

type registerWrite struct {
	addr  uint16
	words []uint16
}

type fakeClient struct {
	modbus.Client
	writes []registerWrite
	inputs map[uint16]uint16
	err    error
}

func (f *fakeClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = uint16(value[2*i])<<8 | uint16(value[2*i+1])
	}
	f.writes = append(f.writes, registerWrite{addr: address, words: words})
	return nil, nil
}

func (f *fakeClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.writes = append(f.writes, registerWrite{addr: address, words: []uint16{value}})
	return nil, nil
}

func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := f.inputs[address]
	return []byte{byte(v >> 8), byte(v)}, nil
}

type fakeTransport struct {
	modbus.ClientHandler
	closed bool
	err    error
}

func (f *fakeTransport) Connect() error { return nil }
func (f *fakeTransport) Close() error {
	f.closed = true
	return f.err
}

func newTestBoard() (*Board, *fakeClient, *fakeTransport) {
	b := NewBoard(types.ModbusConfig{Type: "tcp", MotorBase: 0x100, JointBase: 0x200, SensorBase: 0x300})
	client := &fakeClient{inputs: map[uint16]uint16{}}
	tr := &fakeTransport{}
	b.attach(tr, client)
	return b, client, tr
}

func TestMotorAndJointRegisters(t *testing.T) {
	b, client, _ := newTestBoard()

	require.NoError(t, b.WriteMotorOutput(types.RearLeft, types.DirectionReverse, 75))
	require.NoError(t, b.WriteJointAngle(5, 180))

	require.Len(t, client.writes, 2)
	assert.Equal(t, registerWrite{addr: 0x104, words: []uint16{uint16(types.DirectionReverse), 75}}, client.writes[0])
	assert.Equal(t, registerWrite{addr: 0x205, words: []uint16{180}}, client.writes[1])
}

func TestReadDistanceInCentimetres(t *testing.T) {
	b, client, _ := newTestBoard()
	client.inputs[0x300] = 1234
	client.inputs[0x301] = 0

	assert.InDelta(t, 123.4, b.ReadDistance(types.SideFront), 1e-9)
	assert.Zero(t, b.ReadDistance(types.SideRear))

	client.err = errors.New("timeout")
	assert.Equal(t, -1.0, b.ReadDistance(types.SideFront))
}

func TestWriteErrorsAreWrapped(t *testing.T) {
	b, client, _ := newTestBoard()
	cause := errors.New("exception 4")
	client.err = cause
	assert.ErrorIs(t, b.WriteMotorOutput(types.FrontLeft, types.DirectionForward, 10), cause)
	assert.ErrorIs(t, b.WriteJointAngle(0, 90), cause)
}

func TestCloseBrakesAndCombinesErrors(t *testing.T) {
	b, client, tr := newTestBoard()
	require.NoError(t, b.Close())
	assert.True(t, tr.closed)
	require.Len(t, client.writes, 1)
	assert.Equal(t, uint16(0x100), client.writes[0].addr)
	assert.Equal(t, make([]uint16, 8), client.writes[0].words)

	b, client, tr = newTestBoard()
	client.err = errors.New("bus error")
	tr.err = errors.New("port busy")
	err := b.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus error")
	assert.Contains(t, err.Error(), "port busy")

	assert.Error(t, b.WriteJointAngle(0, 90), "closed board refuses writes")
}

func TestNewTransportByType(t *testing.T) {
	for _, typ := range []string{"tcp", "rtu", "ascii"} {
		b := NewBoard(types.ModbusConfig{Type: typ, Address: "/dev/ttyUSB0", Timeout: 50 * time.Millisecond})
		h, err := b.newTransport()
		require.NoError(t, err, typ)
		assert.NotNil(t, h)
	}
	_, err := NewBoard(types.ModbusConfig{Type: "can"}).newTransport()
	assert.Error(t, err)

	err = NewBoard(types.ModbusConfig{Type: "tcp"}).Connect(canceledContext())
	assert.ErrorIs(t, err, context.Canceled)
}

func canceledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
