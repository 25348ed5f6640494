package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendRoundTrip(t *testing.T) {
	socketPath := startOwner(t, HandlerFunc(func(_ context.Context, req Request) Response {
		if req.Command != CommandTrigger || req.Trigger != "post-router-toggle" {
			return Response{OK: false, Error: "unexpected request"}
		}
		return Response{OK: true, State: "recording", Mode: "post-router", Verdict: "accepted", Level: 0.25}
	}))

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandTrigger, Trigger: "post-router-toggle"}, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, Response{OK: true, State: "recording", Mode: "post-router", Verdict: "accepted", Level: 0.25}, resp)
}

func TestSendReportsBrokenOwner(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr string
	}{
		{name: "garbage reply", reply: "not-json\n", wantErr: "decode response"},
		{name: "hangup", reply: "", wantErr: "read response"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			socketPath := filepath.Join(t.TempDir(), "voicify-shell.sock")
			listener, err := net.Listen("unix", socketPath)
			require.NoError(t, err)
			t.Cleanup(func() { _ = listener.Close() })

			go func() {
				conn, acceptErr := listener.Accept()
				if acceptErr != nil {
					return
				}
				defer conn.Close()
				_, _ = bufio.NewReader(conn).ReadBytes('\n')
				if tc.reply != "" {
					_, _ = conn.Write([]byte(tc.reply))
				}
			}()

			_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestServeRejectsMalformedRequests(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "not json", raw: "not-json\n", wantErr: "decode request"},
		{name: "missing command", raw: `{"trigger":"cancel"}` + "\n", wantErr: "missing command"},
		{name: "oversized", raw: `{"command":"` + strings.Repeat("x", maxRequestBytes) + "\"}\n", wantErr: "read request"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handled := false
			socketPath := startOwner(t, HandlerFunc(func(context.Context, Request) Response {
				handled = true
				return Response{OK: true}
			}))

			resp := rawExchange(t, socketPath, tc.raw)
			require.False(t, resp.OK)
			require.Contains(t, resp.Error, tc.wantErr)
			require.False(t, handled)
		})
	}
}

func TestServeDropsIdleClients(t *testing.T) {
	socketPath := startOwner(t, HandlerFunc(func(context.Context, Request) Response {
		return Response{OK: true}
	}))

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(requestDeadline+time.Second)))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "read request")
}

func TestCallMapsMissingSocketAndRejections(t *testing.T) {
	_, err := Call(context.Background(), filepath.Join(t.TempDir(), "voicify-shell.sock"), Request{Command: CommandStatus}, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrNoOwner)

	socketPath := startOwner(t, HandlerFunc(func(_ context.Context, req Request) Response {
		return Response{OK: false, Error: "unknown trigger \"" + req.Trigger + "\""}
	}))

	resp, err := Call(context.Background(), socketPath, Request{Command: CommandTrigger, Trigger: "nope"}, 200*time.Millisecond)
	require.Error(t, err)
	require.False(t, resp.OK)
	require.Contains(t, err.Error(), `trigger: unknown trigger "nope"`)
}

// startOwner serves handler on a fresh socket until the test ends.
func startOwner(t *testing.T, handler Handler) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "voicify-shell.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, handler)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-serveDone)
	})
	return socketPath
}

func rawExchange(t *testing.T, socketPath, raw string) Response {
	t.Helper()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	return resp
}
