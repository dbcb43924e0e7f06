package spjs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mastercactapus/echem/transport"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	parse := func(s string) interface{} {
		var msg map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(s), &msg))
		val, err := parseMessage([]byte(s), msg)
		require.NoError(t, err, s)
		return val
	}

	assert.Equal(t, &DataFrame{Port: "COM3", Data: "0.5\n"}, parse(`{"P":"COM3","D":"0.5\n"}`))
	assert.Equal(t, &ErrorMessage{Error: "port busy"}, parse(`{"Error":"port busy"}`))
	assert.Equal(t, &CmdStatus{Cmd: "Queued", QueueCount: 2, Type: []string{"Buf"}, Data: []string{"READI"}, ID: "echem1"},
		parse(`{"Cmd":"Queued","QCnt":2,"Type":["Buf"],"D":["READI"],"Id":"echem1"}`))

	list := parse(`{"SerialPorts":[{"Name":"/dev/ttyUSB0","Baud":9600,"IsOpen":true}]}`).(*SerialPortList)
	require.Len(t, list.SerialPorts, 1)
	assert.Equal(t, "/dev/ttyUSB0", list.SerialPorts[0].Name)

	_, err := parseMessage([]byte(`{"Hostname":"lab"}`), map[string]json.RawMessage{"Hostname": nil})
	assert.Error(t, err)
}

type fakeServer struct {
	mx   sync.Mutex
	cmds []string
}

func (f *fakeServer) commands() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var upgrader websocket.Upgrader
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		cmd := string(data)
		f.mx.Lock()
		f.cmds = append(f.cmds, cmd)
		f.mx.Unlock()

		// the real server echoes every command
		ws.WriteMessage(websocket.TextMessage, data)

		switch {
		case cmd == "list":
			ws.WriteJSON(SerialPortList{SerialPorts: []SerialPort{{Name: "/dev/ttyUSB0", Baud: 9600}}})
		case strings.HasPrefix(cmd, "sendjson "):
			var v JSON
			if err := json.Unmarshal([]byte(strings.TrimPrefix(cmd, "sendjson ")), &v); err != nil || len(v.Data) == 0 {
				ws.WriteJSON(ErrorMessage{Error: "bad sendjson"})
				continue
			}
			ws.WriteJSON(CmdStatus{Cmd: "Queued", QueueCount: 1, Type: []string{"Buf"}, Data: []string{v.Data[0].Data}, ID: v.Data[0].ID})
			if strings.TrimSpace(v.Data[0].Data) == "READI" {
				// replies may be split across frames
				ws.WriteJSON(DataFrame{Port: v.Port, Data: "1,"})
				ws.WriteJSON(DataFrame{Port: v.Port, Data: "-6\r\n"})
			}
		}
	}
}

func TestClient_Conn(t *testing.T) {
	f := &fakeServer{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	l, _ := logtest.NewNullLogger()
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), WithLogger(l), WithReconnectDelay(10*time.Millisecond))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := c.OpenConn(ctx, "/dev/ttyUSB0", 9600, transport.WithReadTimeout(2*time.Second))
	require.NoError(t, err)

	require.NoError(t, conn.WriteLine("READI"))
	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "1,-6", line)

	assert.Eventually(t, func() bool { return len(c.SerialPorts()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, f.commands(), "open /dev/ttyUSB0 9600 default")

	_, err = c.Open(ctx, "/dev/ttyUSB0", 9600)
	assert.Error(t, err, "port is already open")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		for _, cmd := range f.commands() {
			if cmd == "close /dev/ttyUSB0" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClient_Closed(t *testing.T) {
	l, _ := logtest.NewNullLogger()
	// nothing listens here; the client keeps retrying until closed
	c := NewClient("ws://127.0.0.1:1/ws", WithLogger(l), WithReconnectDelay(time.Millisecond))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.WriteString(context.Background(), "list"), ErrClosed)
	_, err := c.Open(context.Background(), "COM1", 9600)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPort_CloseAfterClient(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	defer srv.Close()

	l, _ := logtest.NewNullLogger()
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), WithLogger(l), WithReconnectDelay(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := c.Open(ctx, "/dev/ttyUSB0", 9600)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	// the server is gone with the client, nothing left to close
	assert.NoError(t, p.Close())

	_, err = p.Write([]byte("READI\n"))
	assert.ErrorIs(t, err, ErrClosed)
}
