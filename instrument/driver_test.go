package instrument

import (
	"bufio"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/mastercactapus/echem/transport"
	"github.com/mastercactapus/echem/transport/transporttest"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_SetMode(t *testing.T) {
	rec := &transporttest.Recorder{}
	d := NewDriver(rec)

	_, ok := d.Mode()
	assert.False(t, ok)

	require.NoError(t, d.SetMode(Galvanostat))
	require.NoError(t, d.SetMode(Potentiostat))
	assert.Equal(t, []string{"MODE 1", "CELL 1", "MODE 2", "CELL 1"}, rec.Lines())

	mode, ok := d.Mode()
	assert.True(t, ok)
	assert.Equal(t, Potentiostat, mode)
}

func TestDriver_SetValue(t *testing.T) {
	rec := &transporttest.Recorder{}
	d := NewDriver(rec, WithDebug())

	var perr *ProtocolError
	assert.ErrorAs(t, d.SetValue(0.1), &perr)
	assert.Empty(t, rec.Lines())

	require.NoError(t, d.SetMode(Potentiostat))
	require.NoError(t, d.SetValue(-0.25))
	require.NoError(t, d.SetValue(0))

	require.NoError(t, d.SetMode(Galvanostat))
	require.NoError(t, d.SetValue(-2.5e-5))
	require.NoError(t, d.SetValue(0))

	assert.Equal(t, []string{
		"MODE 2", "CELL 1", "SETE -0.25", "SETE 0",
		"MODE 1", "CELL 1", "SETI -3 -5", "SETI 0 -6",
	}, rec.Lines())
}

func TestDriver_ReadValue(t *testing.T) {
	reply := "2,-5"
	rec := &transporttest.Recorder{Reply: func(cmd string) (string, bool) {
		switch cmd {
		case "READI":
			return reply, true
		case "READE":
			return "-0.125", true
		}
		return "", false
	}}
	d := NewDriver(rec)

	_, err := d.ReadValue()
	assert.Error(t, err)

	require.NoError(t, d.SetMode(Potentiostat))
	v, err := d.ReadValue()
	assert.NoError(t, err)
	assert.Equal(t, 2e-5, v)

	for _, bad := range []string{"2", "2,-5,1", "x,-5", "2,y", ""} {
		reply = bad
		_, err = d.ReadValue()
		var perr *ProtocolError
		assert.ErrorAs(t, err, &perr, "reply %q", bad)
	}

	require.NoError(t, d.SetMode(Galvanostat))
	v, err = d.ReadValue()
	assert.NoError(t, err)
	assert.Equal(t, -0.125, v)
}

func TestDriver_ReadVoltageShape(t *testing.T) {
	rec := &transporttest.Recorder{Reply: func(cmd string) (string, bool) {
		return "0.1,0.2", cmd == "READE"
	}}
	d := NewDriver(rec)
	require.NoError(t, d.SetMode(Galvanostat))

	_, err := d.ReadValue()
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, "READE", perr.Command)
}

func TestDriver_TransportErrors(t *testing.T) {
	rec := &transporttest.Recorder{Reply: func(string) (string, bool) { return "", false }}
	d := NewDriver(rec)
	require.NoError(t, d.SetMode(Potentiostat))

	_, err := d.ReadValue()
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "read", terr.Op)
	assert.ErrorIs(t, err, transport.ErrTimeout)

	boom := errors.New("unplugged")
	rec.WriteErr = func(string) error { return boom }
	err = d.SetValue(0)
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "write", terr.Op)
	assert.ErrorIs(t, err, boom)
}

func TestControlMode_Text(t *testing.T) {
	var m ControlMode
	assert.NoError(t, m.UnmarshalText([]byte("galvanostat")))
	assert.Equal(t, Galvanostat, m)

	b, err := Potentiostat.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "potentiostat", string(b))

	assert.Error(t, m.UnmarshalText([]byte("amperometric")))
}

func TestDriver_LateReply(t *testing.T) {
	host, dev := net.Pipe()
	conn := transport.NewConn(host, transport.WithReadTimeout(50*time.Millisecond))
	defer conn.Close()

	// the device answers the first READI after the read timed out
	late := make(chan struct{})
	go func() {
		defer dev.Close()
		scan := bufio.NewScanner(dev)
		var reads int
		for scan.Scan() {
			if scan.Text() != "READI" {
				continue
			}
			reads++
			if reads == 1 {
				time.Sleep(100 * time.Millisecond)
				io.WriteString(dev, "1,-3\n")
				close(late)
				continue
			}
			io.WriteString(dev, "7,-9\n")
		}
	}()

	l, hook := logtest.NewNullLogger()
	d := NewDriver(conn, WithLogger(l))
	require.NoError(t, d.SetMode(Potentiostat))

	_, err := d.ReadValue()
	assert.ErrorIs(t, err, transport.ErrTimeout)

	<-late
	time.Sleep(20 * time.Millisecond)

	v, err := d.ReadValue()
	require.NoError(t, err)
	assert.InEpsilon(t, 7e-9, v, 1e-9)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "discarded stale replies", hook.LastEntry().Message)
}
