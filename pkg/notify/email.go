// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/serversentry/serversentry/pkg/errs"
)

type emailConfig struct {
	SMTPServer string   `mapstructure:"smtp_server"`
	SMTPPort   int      `mapstructure:"smtp_port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
	UseTLS     bool     `mapstructure:"use_tls"`
}

type emailChannel struct {
	cfg emailConfig

	// for testing
	deliver func(ctx context.Context, msg []byte) error
}

func init() {
	RegisterChannelFactory("email", func() Channel {
		c := &emailChannel{}
		c.deliver = c.smtpDeliver
		return c
	})
}

func (e *emailChannel) Info() ChannelMeta {
	return ChannelMeta{Name: "email", Description: "SMTP relay delivery"}
}

func (e *emailChannel) Configure(cfg map[string]interface{}) error {
	if err := mapstructure.Decode(cfg, &e.cfg); err != nil {
		return errs.New(errs.InvalidInput, "email", err)
	}
	if e.cfg.SMTPServer == "" {
		return errs.Newf(errs.InvalidInput, "email", "email channel needs an smtp server").
			WithRemedy("set notifications.email.smtp_server")
	}
	if e.cfg.From == "" || len(e.cfg.To) == 0 {
		return errs.Newf(errs.InvalidInput, "email", "email channel needs from and to addresses")
	}
	if e.cfg.SMTPPort == 0 {
		e.cfg.SMTPPort = 587
	}
	return nil
}

func (e *emailChannel) Send(ctx context.Context, event *Event) Result {
	msg := e.buildMessage(event)
	if err := e.deliver(ctx, msg); err != nil {
		if errs.KindOf(err) == errs.PermissionDenied {
			return permanent(err)
		}
		return transient(err)
	}
	return okResult()
}

func (e *emailChannel) smtpDeliver(ctx context.Context, msg []byte) error {
	host := e.cfg.SMTPServer
	addr := fmt.Sprintf("%s:%d", host, e.cfg.SMTPPort)

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errs.New(errs.Transport, addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline) //nolint:errcheck
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return errs.New(errs.Transport, addr, err)
	}
	defer client.Close()

	if e.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return errs.New(errs.Transport, addr, err)
			}
		}
	}

	if e.cfg.Username != "" {
		auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, host)
		if err := client.Auth(auth); err != nil {
			return errs.New(errs.PermissionDenied, addr, err).
				WithRemedy("check notifications.email.username and password")
		}
	}

	if err := client.Mail(e.cfg.From); err != nil {
		return errs.New(errs.Transport, addr, err)
	}
	for _, rcpt := range e.cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return errs.New(errs.Transport, addr, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return errs.New(errs.Transport, addr, err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return errs.New(errs.Transport, addr, err)
	}
	if err := w.Close(); err != nil {
		return errs.New(errs.Transport, addr, err)
	}
	return client.Quit()
}

const emailBoundary = "serversentry-boundary-9a2f"

func (e *emailChannel) buildMessage(event *Event) []byte {
	subject := fmt.Sprintf("[%s] %s", event.Severity.String(), event.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", event.Timestamp.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", emailBoundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", emailBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(event.Message)
	if metrics := event.MetricsLine(); metrics != "" {
		b.WriteString("\r\n\r\n")
		b.WriteString(metrics)
	}
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", emailBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "<html><body><h3 style=%q>%s</h3><p>%s</p>",
		"color:#"+event.Color(), event.Title, event.Message)
	if metrics := event.MetricsLine(); metrics != "" {
		fmt.Fprintf(&b, "<pre>%s</pre>", metrics)
	}
	fmt.Fprintf(&b, "<p><small>%s | %s</small></p></body></html>\r\n",
		event.Facts.Hostname, event.Timestamp.UTC().Format(time.RFC1123))

	fmt.Fprintf(&b, "--%s--\r\n", emailBoundary)
	return []byte(b.String())
}
