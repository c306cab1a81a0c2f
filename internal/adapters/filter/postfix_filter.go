package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/stats"
)

// PostfixConfig holds the Postfix content-filter settings.
type PostfixConfig struct {
	ListenAddr    string
	BlockSpam     bool
	SpamHeader    string
	ScoreHeader   string
	ReasonHeader  string
	MethodHeader  string
	PostfixAddr   string
	PostfixPort   int
	SubjectPrefix string
	ModifySubject bool
}

// PostfixFilter is an SMTP content filter for Postfix: it accepts
// messages on a local port, classifies them, stamps the verdict headers
// and reinjects the message into Postfix.
type PostfixFilter struct {
	pipeline *core.Pipeline
	stats    *stats.Manager
	cfg      PostfixConfig
	logger   *zap.Logger
	server   *smtp.Server
}

// NewPostfixFilter creates the content filter. stats may be nil.
func NewPostfixFilter(pipeline *core.Pipeline, stats *stats.Manager, cfg PostfixConfig, logger *zap.Logger) *PostfixFilter {
	if cfg.SubjectPrefix == "" && cfg.ModifySubject {
		cfg.SubjectPrefix = "[**SPAM**] "
	}
	return &PostfixFilter{
		pipeline: pipeline,
		stats:    stats,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start begins accepting SMTP connections.
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})
	f.server.Addr = f.cfg.ListenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting", zap.String("address", f.cfg.ListenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the SMTP server down.
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail classifies one message directly, bypassing SMTP.
func (f *PostfixFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.Decision, error) {
	decision := f.pipeline.Classify(ctx, email)
	if f.stats != nil {
		f.stats.RecordDecision(decision)
	}
	return decision, nil
}

// sendToPostfix reinjects the stamped message into Postfix.
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	addr := fmt.Sprintf("%s:%d", f.cfg.PostfixAddr, f.cfg.PostfixPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		accepted = true
	}
	if !accepted {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

type smtpBackend struct {
	filter *PostfixFilter
}

func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data classifies the message and either rejects it or stamps the
// verdict headers and hands it back to Postfix.
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.filter.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	email, err := EmailFromMessage(msg, s.sender, time.Now())
	if err != nil {
		s.filter.logger.Error("Failed to extract text content", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	decision, _ := s.filter.ProcessEmail(ctx, email)

	if decision.IsSpam() && s.filter.cfg.BlockSpam {
		s.filter.logger.Info("Rejecting spam email",
			zap.String("from", email.SenderEmail),
			zap.String("sender_domain", email.SenderDomain),
			zap.Float64("confidence", decision.Confidence),
			zap.String("method", decision.Method),
			zap.String("reason", decision.Reason))
		return fmt.Errorf("550 Rejected as spam (confidence: %.2f)", decision.Confidence)
	}

	modified := s.stampHeaders(msg, rawData, decision)

	if err := s.filter.sendToPostfix(s.sender, s.recipients, modified); err != nil {
		s.filter.logger.Error("Failed to send email back to Postfix",
			zap.Error(err),
			zap.String("sender", email.SenderEmail))
		return err
	}

	s.filter.logger.Info("Processed email",
		zap.String("from", email.SenderEmail),
		zap.String("sender_domain", email.SenderDomain),
		zap.Bool("is_spam", decision.IsSpam()),
		zap.Float64("confidence", decision.Confidence),
		zap.String("method", decision.Method))
	return nil
}

// stampHeaders rebuilds the message with the verdict headers prepended
// and, for spam, the subject prefix applied. The original body bytes are
// copied untouched so MIME parts and attachments survive.
func (s *smtpSession) stampHeaders(msg *mail.Message, rawData []byte, decision *core.Decision) []byte {
	cfg := s.filter.cfg
	var out bytes.Buffer

	fmt.Fprintf(&out, "%s: %t\r\n", cfg.SpamHeader, decision.IsSpam())
	fmt.Fprintf(&out, "%s: %.4f\r\n", cfg.ScoreHeader, decision.Confidence)
	fmt.Fprintf(&out, "%s: %s\r\n", cfg.ReasonHeader, decision.Reason)
	if cfg.MethodHeader != "" {
		fmt.Fprintf(&out, "%s: %s\r\n", cfg.MethodHeader, decision.Method)
	}

	rewriteSubject := decision.IsSpam() && cfg.ModifySubject && cfg.SubjectPrefix != ""
	if rewriteSubject {
		subject := msg.Header.Get("Subject")
		if decoded, err := decodeEncodedHeader(subject); err == nil {
			subject = decoded
		}
		if !strings.HasPrefix(subject, cfg.SubjectPrefix) {
			subject = cfg.SubjectPrefix + subject
		}
		fmt.Fprintf(&out, "Subject: %s\r\n", subject)
	}

	for key, values := range msg.Header {
		if rewriteSubject && strings.EqualFold(key, "Subject") {
			continue
		}
		for _, value := range values {
			fmt.Fprintf(&out, "%s: %s\r\n", key, value)
		}
	}
	out.WriteString("\r\n")

	if i := bytes.Index(rawData, []byte("\r\n\r\n")); i >= 0 {
		out.Write(rawData[i+4:])
	} else if i := bytes.Index(rawData, []byte("\n\n")); i >= 0 {
		out.Write(rawData[i+2:])
	} else if body, err := io.ReadAll(msg.Body); err == nil {
		out.Write(body)
	}
	return out.Bytes()
}

func (s *smtpSession) Logout() error {
	return nil
}
