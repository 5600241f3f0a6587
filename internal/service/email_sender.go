package service

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	rendererhtml "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/config"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

type EmailSender interface {
	Send(ctx context.Context, mail Mail) error
}

// mailMarkdown renders the text body as the html alternative. Raw html tags in
// the body are omitted since user supplied messages end up in it.
var mailMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(rendererhtml.WithHardWraps()),
)

type smtpSender struct {
	cfg config.MailConfig
}

func NewEmailSender(cfg config.MailConfig) EmailSender {
	return &smtpSender{cfg: cfg}
}

func (s *smtpSender) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := strings.TrimSpace(s.cfg.From)
	if s.cfg.Host == "" || s.cfg.Port == 0 || from == "" {
		return fmt.Errorf("%w: mail is not configured", appErr.ErrInvalid)
	}
	msg, err := buildMessage(from, mail)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, from, []string{mail.To}, msg); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Debug("mail sent", zap.String("to", mail.To), zap.String("subject", mail.Subject))
	return nil
}

func renderMailHTML(body string) (string, error) {
	var buf bytes.Buffer
	if err := mailMarkdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render mail html: %w", err)
	}
	return buf.String(), nil
}

func buildMessage(from string, mail Mail) ([]byte, error) {
	html, err := renderMailHTML(mail.Body)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", mail.Body},
		{"text/html; charset=UTF-8", html},
	}
	for _, p := range parts {
		w, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", mail.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", mail.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
