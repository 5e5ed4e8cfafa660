package email

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	sent []Message
	err  error
}

func (t *recordingTransport) Send(ctx context.Context, msg Message) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func TestService_SendCode(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		subject string
	}{
		{"verification", KindVerification, "Email Verification"},
		{"password reset", KindPasswordReset, "Password Reset Code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &recordingTransport{}
			svc := NewService(transport, 10*time.Minute)

			require.NoError(t, svc.SendCode(context.Background(), tt.kind, "ann@x.com", "Ann Lee", "123456"))
			require.Len(t, transport.sent, 1)

			msg := transport.sent[0]
			assert.Equal(t, "ann@x.com", msg.To)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Contains(t, msg.HTML, "123456")
			assert.Contains(t, msg.HTML, "Ann Lee")
			assert.Contains(t, msg.HTML, "10 minutes")
		})
	}
}

func TestService_RenderEscapesName(t *testing.T) {
	svc := NewService(&recordingTransport{}, 10*time.Minute)

	msg, err := svc.Render(KindVerification, "a@x.com", "<script>", "123456")
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestService_UnknownKind(t *testing.T) {
	svc := NewService(&recordingTransport{}, 10*time.Minute)

	err := svc.SendCode(context.Background(), Kind("welcome"), "a@x.com", "Ann", "123456")
	assert.Error(t, err)
}

func TestService_TransportError(t *testing.T) {
	svc := NewService(&recordingTransport{err: errors.New("relay down")}, 10*time.Minute)

	err := svc.SendCode(context.Background(), KindVerification, "a@x.com", "Ann", "123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
}

func TestSMTPTransport_CanceledContext(t *testing.T) {
	transport := NewSMTPTransport("localhost", "2525", "noreply@x.com", "pw", "Chatty")
	assert.Equal(t, "Chatty <noreply@x.com>", transport.from)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := transport.Send(ctx, Message{To: "a@x.com"})
	assert.ErrorIs(t, err, context.Canceled)
}

// startFakeRelay serves one SMTP session that accepts everything and
// reports the message body it received.
func startFakeRelay(t *testing.T) (string, string, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	bodies := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 relay ready")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch {
			case line == "DATA":
				_ = tp.PrintfLine("354 send body")
				lines, err := tp.ReadDotLines()
				if err != nil {
					return
				}
				bodies <- strings.Join(lines, "\n")
				_ = tp.PrintfLine("250 queued")
			case line == "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 ok")
			}
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port, bodies
}

func TestSMTPTransport_Send(t *testing.T) {
	host, port, bodies := startFakeRelay(t)
	transport := NewSMTPTransport(host, port, "noreply@chatty.test", "pw", "Chatty")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := transport.Send(ctx, Message{To: "a@x.com", Subject: "Email Verification", HTML: "<p>123456</p>"})
	require.NoError(t, err)

	body := <-bodies
	assert.Contains(t, body, "From: Chatty <noreply@chatty.test>")
	assert.Contains(t, body, "To: a@x.com")
	assert.Contains(t, body, "Subject: Email Verification")
	assert.Contains(t, body, "<p>123456</p>")
}

func TestSMTPTransport_StalledRelayHonoursDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// never send the greeting
		<-release
		_ = conn.Close()
	}()
	t.Cleanup(func() {
		close(release)
		_ = ln.Close()
		<-done
	})

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	transport := NewSMTPTransport(host, port, "noreply@chatty.test", "pw", "Chatty")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = transport.Send(ctx, Message{To: "a@x.com"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
