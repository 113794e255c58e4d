// Package mailer delivers newsletter broadcasts through an SMTP relay.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"newsblog/config"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

var DispatchError = errors.New("newsletter dispatch failed")

// Report tells the caller how a broadcast went. Failed lists the addresses
// the relay refused.
type Report struct {
	Sent   int
	Failed []string
}

type Dispatcher interface {
	Send(ctx context.Context, subject, htmlBody string, recipients []string) (Report, error)
}

type SMTP struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

func NewSMTP(cfg config.SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg, timeout: 30 * time.Second}
}

func (m *SMTP) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Sender),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return mail.NewClient(m.cfg.Server, opts...)
}

// Send opens one session to the relay and delivers a separate message to
// every recipient. Failing to connect or authenticate aborts the broadcast;
// a refused recipient is recorded and the broadcast goes on.
func (m *SMTP) Send(ctx context.Context, subject, htmlBody string, recipients []string) (Report, error) {
	var report Report
	if len(recipients) == 0 {
		return report, nil
	}
	if m.cfg.Server == "" {
		return report, fmt.Errorf("smtp server not configured: %w", DispatchError)
	}

	var (
		messages []*mail.Msg
		sentTo   []string
	)
	for _, to := range recipients {
		msg := mail.NewMsg()
		if err := msg.From(m.cfg.Sender); err != nil {
			return report, fmt.Errorf("sender %q: %v: %w", m.cfg.Sender, err, DispatchError)
		}
		if err := msg.To(to); err != nil {
			log.WithFields(log.Fields{"op": "send", "to": to, "err": err}).Warn("Skipping invalid recipient")
			report.Failed = append(report.Failed, to)
			continue
		}
		msg.Subject(subject)
		msg.SetBodyString(mail.TypeTextHTML, htmlBody)
		messages = append(messages, msg)
		sentTo = append(sentTo, to)
	}
	if len(messages) == 0 {
		return report, nil
	}

	client, err := m.client()
	if err != nil {
		return report, fmt.Errorf("smtp client: %v: %w", err, DispatchError)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return report, fmt.Errorf("dial %s: %v: %w", m.cfg.Addr(), err, DispatchError)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.WithField("err", err).Debug("SMTP quit failed")
		}
	}()

	sendErr := client.Send(messages...)
	perMessage := false
	for i, msg := range messages {
		logger := log.WithFields(log.Fields{"op": "send", "to": sentTo[i]})
		if msg.HasSendError() {
			perMessage = true
			logger.WithField("err", msg.SendError()).Warn("Could not deliver newsletter")
			report.Failed = append(report.Failed, sentTo[i])
			continue
		}
		logger.Debug("Delivered")
		report.Sent++
	}
	if sendErr != nil && !perMessage {
		// The session broke down before any message was attempted.
		return Report{Failed: report.Failed}, fmt.Errorf("send: %v: %w", sendErr, DispatchError)
	}
	return report, nil
}
