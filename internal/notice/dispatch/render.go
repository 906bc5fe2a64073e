package dispatch

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/k3a/html2text"

	contributionmodels "crummey/internal/contribution/models"
	"crummey/internal/notice/models"
	trustmodels "crummey/internal/trust/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// displayDate is how dates appear in letters.
const displayDate = "January 2, 2006"

// Renderer turns notices into email payloads.
type Renderer struct {
	appURL    string
	templates *template.Template
}

// NewRenderer parses the embedded templates. appURL is the public base URL
// acknowledgment links point at.
func NewRenderer(appURL string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse notice templates: %w", err)
	}
	return &Renderer{appURL: strings.TrimRight(appURL, "/"), templates: tmpl}, nil
}

// AcknowledgmentURL is the public link for token.
func (r *Renderer) AcknowledgmentURL(token string) string {
	return r.appURL + "/acknowledge/" + token
}

type letter struct {
	NoticeDate        string
	TrustName         string
	TrustDate         string
	RecipientName     string
	BeneficiaryName   string
	ForMinor          bool
	Salutation        string
	ContributionDate  string
	Amount            string
	Deadline          string
	DaysRemaining     int
	TrusteeName       string
	TrusteeEmail      string
	TrusteePhone      string
	TrusteeAddress    string
	AcknowledgmentURL string
}

// Letter holds everything a notice or reminder refers to.
type Letter struct {
	Trust           *trustmodels.Trust
	Contribution    *contributionmodels.Contribution
	Notice          *models.Notice
	BeneficiaryName string
}

func (r *Renderer) letter(l Letter) letter {
	n := l.Notice
	return letter{
		NoticeDate:        n.NoticeDate.Format(displayDate),
		TrustName:         l.Trust.Name,
		TrustDate:         l.Trust.TrustDate.Format(displayDate),
		RecipientName:     n.RecipientName,
		BeneficiaryName:   l.BeneficiaryName,
		ForMinor:          l.BeneficiaryName != "" && l.BeneficiaryName != n.RecipientName,
		Salutation:        firstName(n.RecipientName),
		ContributionDate:  l.Contribution.ContributionDate.Format(displayDate),
		Amount:            n.WithdrawalAmount.StringFixedBank(2),
		Deadline:          n.WithdrawalDeadline.Format(displayDate),
		TrusteeName:       l.Trust.TrusteeName,
		TrusteeEmail:      l.Trust.TrusteeEmail,
		TrusteePhone:      l.Trust.TrusteePhone,
		TrusteeAddress:    l.Trust.TrusteeAddress,
		AcknowledgmentURL: r.AcknowledgmentURL(n.AcknowledgmentToken),
	}
}

// Notice renders the initial withdrawal-right letter.
func (r *Renderer) Notice(l Letter) (models.Payload, error) {
	subject := "Notice of Right to Withdraw Funds - " + l.Trust.Name
	return r.render("notice.html", subject, l.Notice, r.letter(l))
}

// Reminder renders the reminder sent daysRemaining days before the deadline.
func (r *Renderer) Reminder(l Letter, daysRemaining int) (models.Payload, error) {
	data := r.letter(l)
	data.DaysRemaining = daysRemaining
	unit := "Days"
	if daysRemaining == 1 {
		unit = "Day"
	}
	subject := fmt.Sprintf("Reminder: Withdrawal Right Expires in %d %s - %s", daysRemaining, unit, l.Trust.Name)
	return r.render("reminder.html", subject, l.Notice, data)
}

func (r *Renderer) render(name, subject string, n *models.Notice, data letter) (models.Payload, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return models.Payload{}, fmt.Errorf("render %s: %w", name, err)
	}
	html := buf.String()
	return models.Payload{
		NoticeID:       n.ID,
		Subject:        subject,
		HTMLBody:       html,
		TextBody:       html2text.HTML2Text(html),
		RecipientName:  n.RecipientName,
		RecipientEmail: n.RecipientEmail,
	}, nil
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "Beneficiary"
	}
	return fields[0]
}
