package transport

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	cmdStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	replyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
)

// Console is a stand-in Transport that echoes every command to a writer and
// answers queries with canned readings. It lets methods run end to end
// without an instrument attached.
type Console struct {
	w io.Writer

	mx      sync.Mutex
	pending []string

	// Replies maps a query command to the line returned for it.
	Replies map[string]string
}

var _ Transport = &Console{}

// NewConsole creates a Console writing to w. Current queries read back
// 1 mA and voltage queries 1 mV.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w: w,
		Replies: map[string]string{
			"READI": "1,-3",
			"READE": "0.001",
		},
	}
}

// WriteLine echoes line and queues the canned reply, if any.
func (c *Console) WriteLine(line string) error {
	line = strings.TrimSpace(line)
	c.mx.Lock()
	defer c.mx.Unlock()
	if reply, ok := c.Replies[line]; ok {
		c.pending = append(c.pending, reply)
	}
	_, err := fmt.Fprintln(c.w, cmdStyle.Render(line))
	return err
}

// ReadLine returns the oldest queued reply.
func (c *Console) ReadLine() (string, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if len(c.pending) == 0 {
		return "", ErrTimeout
	}
	reply := c.pending[0]
	c.pending = c.pending[1:]
	_, err := fmt.Fprintln(c.w, replyStyle.Render("<- "+reply))
	return reply, err
}
