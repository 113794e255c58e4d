package mailer

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"newsblog/config"

	"github.com/stretchr/testify/require"
)

// relay is a minimal SMTP server speaking just enough of the protocol for
// the mail client. Recipients listed in reject get a 550 on RCPT. When auth
// is set the relay advertises AUTH PLAIN and answers it with that reply.
type relay struct {
	listener net.Listener
	reject   map[string]bool
	auth     string

	mu       sync.Mutex
	messages map[string]string
}

func startRelay(t *testing.T, reject ...string) *relay {
	return startAuthRelay(t, "", reject...)
}

func startAuthRelay(t *testing.T, auth string, reject ...string) *relay {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &relay{listener: l, auth: auth, reject: map[string]bool{}, messages: map[string]string{}}
	for _, addr := range reject {
		r.reject[addr] = true
	}
	t.Cleanup(func() { l.Close() })
	go r.serve()
	return r
}

func (r *relay) config() config.SMTPConfig {
	host, port, _ := net.SplitHostPort(r.listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return config.SMTPConfig{Server: host, Port: p, Sender: "blog@example.com"}
}

func (r *relay) serve() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *relay) handle(conn net.Conn) {
	defer conn.Close()
	in := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }

	reply("220 localhost ESMTP")
	var rcpt string
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch {
		case verb == "EHLO" || verb == "HELO":
			if r.auth != "" {
				reply("250-localhost")
				reply("250 AUTH PLAIN")
				continue
			}
			reply("250 localhost")
		case verb == "AUTH":
			reply(r.auth)
		case verb == "NOOP":
			reply("250 OK")
		case strings.HasPrefix(strings.ToUpper(line), "MAIL FROM:"):
			reply("250 OK")
		case strings.HasPrefix(strings.ToUpper(line), "RCPT TO:"):
			addr := strings.Trim(line[len("RCPT TO:"):], "<> ")
			if r.reject[addr] {
				reply("550 no such user")
				continue
			}
			rcpt = addr
			reply("250 OK")
		case verb == "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := in.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			r.mu.Lock()
			r.messages[rcpt] = body.String()
			r.mu.Unlock()
			reply("250 queued")
		case verb == "RSET":
			rcpt = ""
			reply("250 OK")
		case verb == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func (r *relay) delivered() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.messages))
	for k, v := range r.messages {
		out[k] = v
	}
	return out
}

func TestSendDeliversToEveryRecipient(t *testing.T) {
	r := startRelay(t)
	m := NewSMTP(r.config())

	report, err := m.Send(context.Background(), "News", "<p>Hello</p>", []string{"a@b.com", "c@d.com"})
	require.NoError(t, err)
	require.Equal(t, 2, report.Sent)
	require.Empty(t, report.Failed)

	messages := r.delivered()
	require.Len(t, messages, 2)
	require.Contains(t, messages["a@b.com"], "a@b.com")
	require.Contains(t, messages["a@b.com"], "Subject: News")
	require.Contains(t, messages["a@b.com"], "text/html")
	require.Contains(t, messages["c@d.com"], "<p>Hello</p>")
	require.NotContains(t, messages["c@d.com"], "a@b.com")
}

func TestSendRecordsRefusedRecipients(t *testing.T) {
	r := startRelay(t, "gone@b.com")
	m := NewSMTP(r.config())

	report, err := m.Send(context.Background(), "News", "<p>Hi</p>", []string{"a@b.com", "gone@b.com", "c@d.com"})
	require.NoError(t, err)
	require.Equal(t, 2, report.Sent)
	require.Equal(t, []string{"gone@b.com"}, report.Failed)
	require.NotContains(t, r.delivered(), "gone@b.com")
}

func TestSendWithoutRecipientsDoesNotConnect(t *testing.T) {
	m := NewSMTP(config.SMTPConfig{})
	report, err := m.Send(context.Background(), "News", "<p>Hi</p>", nil)
	require.NoError(t, err)
	require.Zero(t, report.Sent)
}

func TestSendFailsWhenRelayUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	m := NewSMTP(config.SMTPConfig{Server: "127.0.0.1", Port: addr.Port, Sender: "blog@example.com"})
	_, err = m.Send(context.Background(), "News", "<p>Hi</p>", []string{"a@b.com"})
	require.ErrorIs(t, err, DispatchError)

	_, err = NewSMTP(config.SMTPConfig{}).Send(context.Background(), "News", "<p>Hi</p>", []string{"a@b.com"})
	require.ErrorIs(t, err, DispatchError)
}

func TestSendWithPasswordAuthenticates(t *testing.T) {
	r := startAuthRelay(t, "235 authenticated")
	cfg := r.config()
	cfg.Password = "pw"

	report, err := NewSMTP(cfg).Send(context.Background(), "News", "<p>Hi</p>", []string{"a@b.com"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Sent)
}

func TestSendFailsWhenAuthRejected(t *testing.T) {
	r := startAuthRelay(t, "535 authentication failed")
	cfg := r.config()
	cfg.Password = "wrong"

	report, err := NewSMTP(cfg).Send(context.Background(), "News", "<p>Hi</p>", []string{"a@b.com", "c@d.com"})
	require.ErrorIs(t, err, DispatchError)
	require.Zero(t, report.Sent)
	require.Empty(t, r.delivered())
}
