package session

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/net/websocket"
)

// ErrFrameTooLarge reports an inbound frame over the size limit. The stream
// stays usable.
var ErrFrameTooLarge = errors.New("session: frame too large")

// frameCodec moves whole frames over one connection.
type frameCodec interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte, deadline time.Time) error
	Close() error
}

// lineCodec frames by newline, as the tcp server does.
type lineCodec struct {
	conn net.Conn
	r    *bufio.Reader
	max  int
}

func newLineCodec(conn net.Conn, max int) *lineCodec {
	return &lineCodec{conn: conn, r: bufio.NewReaderSize(conn, 64*1024), max: max}
}

func (l *lineCodec) ReadFrame() ([]byte, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := l.r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > l.max {
				oversized = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case err == nil:
			if oversized {
				return nil, ErrFrameTooLarge
			}
			return bytes.TrimSpace(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && !oversized && len(bytes.TrimSpace(line)) > 0:
			return bytes.TrimSpace(line), nil
		default:
			return nil, err
		}
	}
}

func (l *lineCodec) WriteFrame(data []byte, deadline time.Time) error {
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')
	_, err := l.conn.Write(frame)
	return err
}

func (l *lineCodec) Close() error {
	return l.conn.Close()
}

// wsCodec carries one envelope per websocket message.
type wsCodec struct {
	conn *websocket.Conn
}

func newWSCodec(conn *websocket.Conn, max int) *wsCodec {
	conn.MaxPayloadBytes = max
	return &wsCodec{conn: conn}
}

func (w *wsCodec) ReadFrame() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(w.conn, &data); err != nil {
		if errors.Is(err, websocket.ErrFrameTooLarge) {
			return nil, ErrFrameTooLarge
		}
		return nil, err
	}
	return bytes.TrimSpace(data), nil
}

func (w *wsCodec) WriteFrame(data []byte, deadline time.Time) error {
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return websocket.Message.Send(w.conn, string(data))
}

func (w *wsCodec) Close() error {
	return w.conn.Close()
}
