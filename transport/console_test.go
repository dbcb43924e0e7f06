package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	assert.NoError(t, c.WriteLine("MODE 2"))
	_, err := c.ReadLine()
	assert.ErrorIs(t, err, ErrTimeout)

	assert.NoError(t, c.WriteLine("READI"))
	line, err := c.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "1,-3", line)

	assert.NoError(t, c.WriteLine("READE"))
	line, err = c.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "0.001", line)

	assert.Contains(t, buf.String(), "MODE 2")
	assert.Contains(t, buf.String(), "READE")
}

func TestFilterPort(t *testing.T) {
	usb := Port{Name: "/dev/ttyUSB0", IsUSB: true, Serial: "PX8X3YR6"}
	builtin := Port{Name: "/dev/ttyS0"}

	var ports []Port
	ports = filterPort(ports, usb, []PortFilter{USBOnly, SerialNumber("px8x3yr6")})
	ports = filterPort(ports, builtin, []PortFilter{USBOnly})
	assert.Equal(t, []Port{usb}, ports)

	assert.Equal(t, "/dev/ttyS0", builtin.String())
}
