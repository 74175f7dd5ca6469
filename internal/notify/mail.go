package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// MailConfig holds SMTP settings for the mail notifier.
type MailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// MailNotifier sends a plain-text summary mail per ingested directory.
type MailNotifier struct {
	client *mail.Client
	from   string
	to     []string
}

// NewMailNotifier builds a notifier from SMTP settings.
func NewMailNotifier(cfg *MailConfig) (*MailNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mail host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("mail from and to addresses are required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &MailNotifier{
		client: client,
		from:   cfg.From,
		to:     cfg.To,
	}, nil
}

// DirectoryProcessed mails the ingestion summary
func (n *MailNotifier) DirectoryProcessed(ctx context.Context, summary Summary) error {
	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return fmt.Errorf("failed to set mail sender: %w", err)
	}
	if err := msg.To(n.to...); err != nil {
		return fmt.Errorf("failed to set mail recipients: %w", err)
	}
	msg.Subject(fmt.Sprintf("Directory processed: %s", summary.Dirname))
	msg.SetBodyString(mail.TypeTextPlain, formatSummary(summary))

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send notification mail: %w", err)
	}
	return nil
}

func formatSummary(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Directory %s was uploaded.\n\n", summary.Dirname)
	fmt.Fprintf(&b, "Files: %d\nTotal size: %d bytes\n\n", summary.FileCount, summary.TotalSize)
	for _, f := range summary.Files {
		fmt.Fprintf(&b, "  %s (%d bytes) -> %s\n", f.Filename, f.FileSize, f.StoragePath)
	}
	return b.String()
}
