// Package sse decodes Server-Sent Events transport frames into protocol
// events. It is the decode boundary of the protocol: frames that fail to parse
// or validate are dropped silently (debug-logged only) and never surface as
// reducer errors; the stream favors availability over strict validation.
//
// A Decoder is a lazy sequence: Next blocks until the next frame is decoded,
// io.EOF marks the end of the underlying stream. Cancellation is the caller's
// concern and happens through the reader (typically an HTTP response body tied
// to a request context).
package sse

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"goa.design/clue/log"

	"goa.design/agentwire/protocol"
)

// Decoder reads SSE frames from an underlying reader and yields decoded
// protocol events. Not safe for concurrent use.
type Decoder struct {
	r      *bufio.Reader
	closer io.Closer
}

// maxFrameBytes bounds a single SSE frame. Frames beyond the limit abort the
// stream rather than exhaust memory.
const maxFrameBytes = 8 << 20

// NewDecoder returns a Decoder reading from r. When r is an io.Closer, Close
// closes it.
func NewDecoder(r io.Reader) *Decoder {
	d := &Decoder{r: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	return d
}

// Next returns the next decoded event. Malformed frames are skipped; io.EOF
// reports the end of the stream. The context is consulted between frames and
// used for drop logging.
func (d *Decoder) Next(ctx context.Context) (protocol.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := d.readFrame()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		evt, err := protocol.UnmarshalEvent(data)
		if err != nil {
			// Malformed frames never surface as errors; see package doc.
			log.Debug(ctx, log.KV{K: "msg", V: "dropping malformed event frame"}, log.KV{K: "err", V: err.Error()})
			continue
		}
		return evt, nil
	}
}

// Close releases the underlying reader when it is closeable.
func (d *Decoder) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// readFrame accumulates the data lines of one SSE frame, ending at a blank
// line. Comment lines and non-data fields (event, id, retry) are ignored; the
// event payload travels entirely in data lines.
func (d *Decoder) readFrame() ([]byte, error) {
	var data bytes.Buffer
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && strings.TrimSpace(line) == "" && data.Len() == 0 {
				return nil, io.EOF
			}
			if err == io.EOF {
				// Trailing frame without final blank line.
				d.appendData(&data, line)
				if data.Len() == 0 {
					return nil, io.EOF
				}
				return data.Bytes(), nil
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if data.Len() == 0 {
				continue
			}
			return data.Bytes(), nil
		}
		d.appendData(&data, line)
		if data.Len() > maxFrameBytes {
			return nil, fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
		}
	}
}

func (d *Decoder) appendData(buf *bytes.Buffer, line string) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return
	}
	payload := strings.TrimPrefix(line, "data:")
	payload = strings.TrimPrefix(payload, " ")
	if buf.Len() > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString(payload)
}

// Encode writes an event as a single SSE frame. Producers use it to serve the
// protocol over HTTP.
func Encode(w io.Writer, evt protocol.Event) error {
	data, err := protocol.MarshalEvent(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
