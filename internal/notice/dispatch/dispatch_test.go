package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contributionmodels "crummey/internal/contribution/models"
	"crummey/internal/notice/models"
	trustmodels "crummey/internal/trust/models"
	"crummey/pkg/domain"
)

func testLetter(t *testing.T) Letter {
	t.Helper()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	tr, err := trustmodels.NewTrust(uuid.New(), uuid.New(), "Smith Family ILIT", trustmodels.TrustTypeILIT,
		domain.NewDate(2020, time.March, 1), 30, "Pat Trustee", "pat@example.com", now)
	require.NoError(t, err)
	tr.TrusteePhone = "555-0100"
	c, err := contributionmodels.NewContribution(uuid.New(), tr.ID, decimal.RequireFromString("15000"),
		domain.NewDate(2024, time.January, 15), "", tr.OwnerID, now)
	require.NoError(t, err)
	n, err := models.NewNotice(uuid.New(), models.Draft{
		ContributionID:      c.ID,
		BeneficiaryID:       uuid.New(),
		TrustID:             tr.ID,
		RecipientName:       "Alex <b>Smith</b>",
		RecipientEmail:      "alex@example.com",
		WithdrawalAmount:    c.Amount,
		WithdrawalDeadline:  c.WithdrawalDeadline(tr.WithdrawalPeriodDays),
		NoticeDate:          domain.DateOf(now),
		AcknowledgmentToken: "tok123",
	}, now)
	require.NoError(t, err)
	return Letter{Trust: tr, Contribution: c, Notice: n, BeneficiaryName: n.RecipientName}
}

func TestRendererNotice(t *testing.T) {
	r, err := NewRenderer("https://notices.example.com/")
	require.NoError(t, err)
	l := testLetter(t)

	p, err := r.Notice(l)
	require.NoError(t, err)

	assert.Equal(t, "Notice of Right to Withdraw Funds - Smith Family ILIT", p.Subject)
	assert.Equal(t, l.Notice.ID, p.NoticeID)
	assert.Equal(t, "alex@example.com", p.RecipientEmail)
	assert.Contains(t, p.HTMLBody, "https://notices.example.com/acknowledge/tok123")
	assert.Contains(t, p.HTMLBody, "$15000.00")
	assert.Contains(t, p.HTMLBody, "February 14, 2024")
	assert.Contains(t, p.HTMLBody, "555-0100")
	assert.NotContains(t, p.HTMLBody, "<b>Smith</b>", "names are escaped")
	assert.Contains(t, p.TextBody, "February 14, 2024")
	assert.NotContains(t, p.TextBody, "<p>")
}

func TestRendererReminder(t *testing.T) {
	r, err := NewRenderer("https://notices.example.com")
	require.NoError(t, err)

	p, err := r.Reminder(testLetter(t), 3)
	require.NoError(t, err)
	assert.Equal(t, "Reminder: Withdrawal Right Expires in 3 Days - Smith Family ILIT", p.Subject)
	assert.Contains(t, p.HTMLBody, "3 days remain")

	p, err = r.Reminder(testLetter(t), 1)
	require.NoError(t, err)
	assert.Equal(t, "Reminder: Withdrawal Right Expires in 1 Day - Smith Family ILIT", p.Subject)
	assert.Contains(t, p.HTMLBody, "1 day remains")
}

func TestGuardianLetterNamesBeneficiary(t *testing.T) {
	r, err := NewRenderer("https://notices.example.com")
	require.NoError(t, err)
	l := testLetter(t)
	l.Notice.RecipientName = "Jordan Guardian"
	l.BeneficiaryName = "Kid Smith"

	p, err := r.Notice(l)
	require.NoError(t, err)
	assert.Contains(t, p.HTMLBody, "Dear Jordan,")
	assert.Contains(t, p.HTMLBody, "Kid Smith is a beneficiary")
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewTextHandler(&buf, nil)))

	id, err := d.Send(context.Background(), models.Payload{NoticeID: uuid.New(), Subject: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Contains(t, buf.String(), "hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Send(ctx, models.Payload{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSMTPDispatcherRejectsBadURL(t *testing.T) {
	for _, raw := range []string{
		"notascheme://nowhere?fromaddress=a@example.com",
		"smtp:///?fromaddress=a@example.com",
		"smtp://mail.example.com:587/",
		"smtp://mail.example.com:587/?fromaddress=not-an-address",
	} {
		_, err := NewSMTPDispatcher(raw, time.Second)
		assert.Error(t, err, raw)
	}
}

func TestBuildMessageCarriesTextAlternative(t *testing.T) {
	p := models.Payload{
		NoticeID:       uuid.New(),
		Subject:        "Crummey Notice für Smith Family ILIT",
		HTMLBody:       "<p>You may withdraw $15,000.</p>",
		TextBody:       "You may withdraw $15,000.",
		RecipientName:  "Alex Smith",
		RecipientEmail: "alex@example.com",
	}
	raw, err := buildMessage("trust@example.com", p, "abc.1234@example.com", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "<abc.1234@example.com>", msg.Header.Get("Message-ID"))
	assert.Equal(t, `"Alex Smith" <alex@example.com>`, msg.Header.Get("To"))
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, p.Subject, subject)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	parts := map[string]string{}
	var order []string
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		ct, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		require.NoError(t, err)
		body, err := io.ReadAll(part)
		require.NoError(t, err)
		parts[ct] = string(body)
		order = append(order, ct)
	}
	assert.Equal(t, []string{"text/plain", "text/html"}, order)
	assert.Equal(t, p.TextBody, parts["text/plain"])
	assert.Equal(t, p.HTMLBody, parts["text/html"])
}

// fakeSMTP accepts one message without TLS or auth and hands back its data.
func fakeSMTP(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0]); cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 localhost")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				got <- string(data)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 ok")
			}
		}
	}()
	return ln.Addr().String(), got
}

func TestSMTPDispatcherSendsMessageID(t *testing.T) {
	addr, got := fakeSMTP(t)
	d, err := NewSMTPDispatcher("smtp://"+addr+"/?fromaddress=trust@example.com", 5*time.Second)
	require.NoError(t, err)

	noticeID := uuid.New()
	id, err := d.Send(context.Background(), models.Payload{
		NoticeID:       noticeID,
		Subject:        "Notice",
		HTMLBody:       "<p>hello</p>",
		TextBody:       "hello",
		RecipientEmail: "alex@example.com",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, noticeID.String()+"."))
	assert.True(t, strings.HasSuffix(id, "@example.com"))

	select {
	case data := <-got:
		msg, err := mail.ReadMessage(strings.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "<"+id+">", msg.Header.Get("Message-ID"))
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
	}
}
