package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/metrics"
)

const dialTimeout = 30 * time.Second

// IMAPConfig holds mailbox connection settings.
type IMAPConfig struct {
	Addr     string // host:port, usually port 993
	Username string
	Password string
	Mailbox  string
	// PlainText disables implicit TLS. Only for local test servers.
	PlainText bool
}

// Fetcher pulls unseen messages over IMAP. Each call opens a fresh session.
type Fetcher struct {
	cfg    IMAPConfig
	logger *zap.Logger
}

// NewFetcher creates an IMAP fetcher.
func NewFetcher(cfg IMAPConfig, logger *zap.Logger) *Fetcher {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// FetchUnseen logs in, fetches every message without the \Seen flag and marks
// them seen. Messages that cannot be parsed are logged and skipped.
func (f *Fetcher) FetchUnseen(ctx context.Context) ([]domain.Message, error) {
	c, err := f.dial()
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()
	defer func() { _ = c.Logout() }()

	if err := c.Login(f.cfg.Username, f.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(f.cfg.Mailbox, false); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", f.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	out, err := f.fetch(c, seqset)
	if err != nil {
		return nil, err
	}

	// BODY[] already sets \Seen on compliant servers; the explicit store
	// covers servers that only honour it for RFC822.
	flags := []any{imap.SeenFlag}
	if err := c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		f.logger.Warn("mark seen failed", zap.Error(err))
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return out, nil
}

func (f *Fetcher) fetch(c *client.Client, seqset *imap.SeqSet) ([]domain.Message, error) {
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var out []domain.Message
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			f.logger.Warn("server returned no body", zap.Uint32("uid", msg.Uid))
			metrics.MailMessagesTotal.WithLabelValues("failed").Inc()
			continue
		}
		parsed, err := ParseMessage(body)
		if err != nil {
			f.logger.Warn("skip unparsable message", zap.Uint32("uid", msg.Uid), zap.Error(err))
			metrics.MailMessagesTotal.WithLabelValues("failed").Inc()
			continue
		}
		parsed.UID = msg.Uid
		out = append(out, parsed)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	return out, nil
}

func (f *Fetcher) dial() (*client.Client, error) {
	if f.cfg.Addr == "" {
		return nil, errors.New("imap address is required")
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var (
		c   *client.Client
		err error
	)
	if f.cfg.PlainText {
		c, err = client.DialWithDialer(dialer, f.cfg.Addr)
	} else {
		host, _, splitErr := net.SplitHostPort(f.cfg.Addr)
		if splitErr != nil {
			return nil, fmt.Errorf("imap address %q: %w", f.cfg.Addr, splitErr)
		}
		c, err = client.DialWithDialerTLS(dialer, f.cfg.Addr, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", f.cfg.Addr, err)
	}
	c.Timeout = dialTimeout
	return c, nil
}
