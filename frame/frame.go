/*Package frame implements the NUL-delimited message framing used by the
pqueue wire protocol: each message is an opaque byte slice followed by a
single 0x00 byte. The codec is independent of whatever schema is encoded
inside a message; encoding/decoding JSON request/response values is the
protocol package's job, layered on top of this one, mirroring the way the
pipeline package keeps its StageRunner plumbing independent of the Payload
types that flow through it.*/
package frame

import (
	"bytes"
	"errors"
	"io"

	"golang.org/x/xerrors"
)

// initialBufferSize is the Reader's starting buffer capacity: one memory
// page.
const initialBufferSize = 4096

// ErrDisconnect is returned by Reader.ReadMessage when the underlying stream
// reaches EOF with a partial, NUL-unterminated message still buffered.
var ErrDisconnect = xerrors.New("frame: connection closed with a partial message buffered")

// Reader decodes a stream of NUL-delimited messages out of an io.Reader. It
// is not safe for concurrent use.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader wraps r in a message-framed Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, 0, initialBufferSize)}
}

// ReadMessage returns the next framed message, blocking until a full message
// is available. It returns io.EOF once the stream is cleanly closed between
// messages, or ErrDisconnect if the stream closes mid-message.
func (fr *Reader) ReadMessage() ([]byte, error) {
	for {
		if i := bytes.IndexByte(fr.buf, 0); i >= 0 {
			msg := make([]byte, i)
			copy(msg, fr.buf[:i])
			fr.buf = fr.buf[i+1:]
			return msg, nil
		}

		chunk := make([]byte, initialBufferSize)
		n, err := fr.r.Read(chunk)
		if n > 0 {
			fr.buf = append(fr.buf, chunk[:n]...)
			// A reader may return data and EOF together; if this chunk
			// completed a message, deliver it before reporting the EOF.
			if bytes.IndexByte(chunk[:n], 0) >= 0 {
				continue
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(fr.buf) == 0 {
					return nil, io.EOF
				}
				return nil, ErrDisconnect
			}
			return nil, xerrors.Errorf("frame: read: %w", err)
		}
	}
}

// Writer encodes messages as a stream of NUL-delimited frames onto an
// io.Writer. It is not safe for concurrent use.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w in a message-framed Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage writes data followed by a single NUL byte.
func (fw *Writer) WriteMessage(data []byte) error {
	if _, err := fw.w.Write(data); err != nil {
		return xerrors.Errorf("frame: write: %w", err)
	}
	if _, err := fw.w.Write([]byte{0}); err != nil {
		return xerrors.Errorf("frame: write delimiter: %w", err)
	}
	return nil
}
