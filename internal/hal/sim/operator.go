package sim

import (
	"bytes"

	"rover/internal/link"
)

// Operator is a connected in-memory operator session. Type queues command
// lines for the robot and Lines collects what the robot sent back.
type Operator struct {
	*link.Endpoint
	scratch []byte
	partial []byte
}

func NewOperator(name string) *Operator {
	o := &Operator{
		Endpoint: link.NewEndpoint(name, link.DefaultRingSize),
		scratch:  make([]byte, link.DefaultRingSize),
	}
	o.Open()
	return o
}

// Type queues each line followed by a newline.
func (o *Operator) Type(lines ...string) {
	for _, l := range lines {
		o.Feed([]byte(l + "\n"))
	}
}

// Lines drains the output and returns every complete line since the last
// call.
func (o *Operator) Lines() []string {
	for {
		n := o.Drain(o.scratch)
		if n == 0 {
			break
		}
		o.partial = append(o.partial, o.scratch[:n]...)
	}
	var out []string
	for {
		line, rest, found := bytes.Cut(o.partial, []byte{'\n'})
		if !found {
			break
		}
		out = append(out, string(line))
		o.partial = rest
	}
	return out
}
