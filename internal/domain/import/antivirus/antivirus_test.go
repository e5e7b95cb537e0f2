package antivirus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
)

// fakeClamd answers INSTREAM requests on a loopback listener.
func fakeClamd(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveClamd(conn)
		}
	}()
	return ln.Addr().String()
}

func serveClamd(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	cmd, err := r.ReadString(0)
	if err != nil || cmd != "zINSTREAM\x00" {
		return
	}

	var body bytes.Buffer
	for {
		var size uint32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return
		}
		if size == 0 {
			break
		}
		if _, err := io.CopyN(&body, r, int64(size)); err != nil {
			return
		}
	}

	if bytes.Contains(body.Bytes(), []byte("EICAR")) {
		conn.Write([]byte("stream: Eicar-Test-Signature FOUND\x00"))
		return
	}
	conn.Write([]byte("stream: OK\x00"))
}

func TestClamdScanner(t *testing.T) {
	addr := fakeClamd(t)
	scanner := NewClamdScanner(addr, time.Second)

	t.Run("clean", func(t *testing.T) {
		res, err := scanner.Scan(context.Background(), []byte("Date,Libellé\n31/01/2024,Café\n"), "a.csv")
		require.NoError(t, err)
		assert.False(t, res.Infected)
	})

	t.Run("infected", func(t *testing.T) {
		res, err := scanner.Scan(context.Background(), []byte("X5O!P%@AP[4\\PZX54(P^)7CC)7}$EICAR"), "a.csv")
		require.NoError(t, err)
		assert.True(t, res.Infected)
		assert.Equal(t, []string{"Eicar-Test-Signature"}, res.Signatures)
	})

	t.Run("larger than one chunk", func(t *testing.T) {
		data := bytes.Repeat([]byte("a;b\n"), clamdChunkSize/2)
		res, err := scanner.Scan(context.Background(), data, "big.csv")
		require.NoError(t, err)
		assert.False(t, res.Infected)
	})
}

func TestClamdScanner_Unavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewClamdScanner(addr, 200*time.Millisecond).Scan(context.Background(), []byte("x"), "a.csv")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestParseReply(t *testing.T) {
	_, err := parseReply("INSTREAM size limit exceeded. ERROR")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type stubScanner struct {
	res Result
	err error
}

func (s stubScanner) Scan(context.Context, []byte, string) (Result, error) {
	return s.res, s.err
}

func TestGuard(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	down := stubScanner{err: errors.New("dial tcp: connection refused")}

	tests := []struct {
		name     string
		scanner  Scanner
		policy   Policy
		wantWarn bool
		wantKind common.Kind
	}{
		{"clean", stubScanner{}, PolicyFailClosed, false, ""},
		{"infected", stubScanner{res: Result{Infected: true, Signatures: []string{"Eicar"}}}, PolicyFailOpen, false, common.KindRejected},
		{"unavailable fail closed", down, PolicyFailClosed, false, common.KindUnavailable},
		{"unavailable fail open", down, PolicyFailOpen, true, ""},
		{"no scanner fail closed", nil, PolicyFailClosed, false, common.KindUnavailable},
		{"no scanner fail open", nil, PolicyFailOpen, true, ""},
		{"disabled", nil, PolicyDisabled, true, ""},
		{"disabled ignores scanner", down, PolicyDisabled, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warning, err := NewGuard(tt.scanner, tt.policy, logger).Check(context.Background(), []byte("x"), "a.csv")
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, common.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWarn, warning != "")
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFailClosed, p)

	p, err = ParsePolicy("FAIL_OPEN")
	require.NoError(t, err)
	assert.Equal(t, PolicyFailOpen, p)

	p, err = ParsePolicy(" disabled ")
	require.NoError(t, err)
	assert.Equal(t, PolicyDisabled, p)

	_, err = ParsePolicy("maybe")
	assert.Error(t, err)
}
