package antivirus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	clamdChunkSize = 64 << 10
	DefaultTimeout = 10 * time.Second
)

// ClamdScanner talks to clamd over TCP using the INSTREAM command.
type ClamdScanner struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewClamdScanner creates a scanner for the clamd listening on addr.
func NewClamdScanner(addr string, timeout time.Duration) *ClamdScanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ClamdScanner{addr: addr, timeout: timeout}
}

// Scan streams data to clamd. Connection and protocol failures wrap ErrUnavailable.
func (c *ClamdScanner) Scan(ctx context.Context, data []byte, _ string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := writeStream(conn, data); err != nil {
		return Result{}, fmt.Errorf("%w: failed to send stream: %v", ErrUnavailable, err)
	}

	reply, err := bufio.NewReader(conn).ReadString(0)
	if err != nil {
		return Result{}, fmt.Errorf("%w: failed to read reply: %v", ErrUnavailable, err)
	}
	return parseReply(strings.TrimRight(reply, "\x00\n"))
}

func writeStream(conn net.Conn, data []byte) error {
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString("zINSTREAM\x00"); err != nil {
		return err
	}

	var size [4]byte
	r := bytes.NewReader(data)
	chunk := make([]byte, clamdChunkSize)
	for {
		n, _ := r.Read(chunk)
		binary.BigEndian.PutUint32(size[:], uint32(n))
		if _, err := w.Write(size[:]); err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if _, err := w.Write(chunk[:n]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// parseReply reads "stream: OK" or "stream: <signature> FOUND".
func parseReply(reply string) (Result, error) {
	body := strings.TrimSpace(strings.TrimPrefix(reply, "stream:"))
	switch {
	case body == "OK":
		return Result{}, nil
	case strings.HasSuffix(body, " FOUND"):
		sig := strings.TrimSpace(strings.TrimSuffix(body, " FOUND"))
		return Result{Infected: true, Signatures: []string{sig}}, nil
	default:
		return Result{}, fmt.Errorf("%w: unexpected reply %q", ErrUnavailable, reply)
	}
}
