package peerwire

import (
	"bytes"
	"fmt"
	"io"
)

// Payload is a typed message body that knows the command it is framed with.
type Payload interface {
	// Command returns the command name the payload is sent under.
	Command() string

	// Encode writes the serialized payload to w.
	Encode(w io.Writer) error
}

// EncodePayload serializes p and wraps it in an envelope under p's command.
func (c *Codec) EncodePayload(p Payload) ([]byte, error) {
	var b bytes.Buffer
	if err := p.Encode(&b); err != nil {
		return nil, fmt.Errorf("unable to encode %s payload: %w",
			p.Command(), err)
	}

	return c.Encode(b.Bytes(), p.Command())
}
