package protocol

import (
	"encoding/json"
	"io"

	"github.com/brandonshearin/pqueue/frame"
	"golang.org/x/xerrors"
)

// Conn layers the Request/Response schema on top of a frame.Reader/Writer
// pair over any io.ReadWriter; a net.Conn in production, or an io.Pipe/
// bytes.Buffer in tests.
type Conn struct {
	fr *frame.Reader
	fw *frame.Writer
}

// NewConn wraps rw in a framed Request/Response codec.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{fr: frame.NewReader(rw), fw: frame.NewWriter(rw)}
}

// ReadRequest reads and decodes the next request. It propagates io.EOF and
// frame.ErrDisconnect verbatim so callers can distinguish a clean close from
// a disconnect; a JSON decode failure is wrapped in ErrProtocol.
func (c *Conn) ReadRequest() (*Request, error) {
	raw, err := c.fr.ReadMessage()
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrProtocol, err)
	}
	return &req, nil
}

// WriteResponse encodes and writes resp as a single framed message.
func (c *Conn) WriteResponse(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return xerrors.Errorf("%w: %v", ErrProtocol, err)
	}
	return c.fw.WriteMessage(data)
}

// WriteRequest encodes and writes req as a single framed message. Used by
// cmd/pqueue, the client side of the protocol.
func (c *Conn) WriteRequest(req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return xerrors.Errorf("%w: %v", ErrProtocol, err)
	}
	return c.fw.WriteMessage(data)
}

// ReadResponse reads and decodes the next response. Used by cmd/pqueue.
func (c *Conn) ReadResponse() (*Response, error) {
	raw, err := c.fr.ReadMessage()
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrProtocol, err)
	}
	return &resp, nil
}
