package email

import (
	"bytes"
	"fmt"
	"net/smtp"
	"text/template"
)

const confirmationTmpl = `To: {{.To}}
Subject: Order {{.OrderCode}} confirmed

Hi {{.Name}},

Your order {{.OrderCode}} has been completed.
Amount charged: {{.Amount}}.

Purchased courses are available in your library. Book activation codes are
listed on the order page.

Thanks for shopping with us.
`

type Confirmation struct {
	To        string
	Name      string
	OrderCode string
	Amount    int
}

type Mailer struct {
	address  string
	password string
	host     string
	port     string
	tmpl     *template.Template
}

func New(address string, password string, host string, port string) *Mailer {
	t := template.Must(template.New("confirmation").Parse(confirmationTmpl))
	return &Mailer{
		address:  address,
		password: password,
		host:     host,
		port:     port,
		tmpl:     t,
	}
}

// SendOrderConfirmation is dispatched fire-and-forget after an order
// completes; delivery failures are logged by the background runner, never
// surfaced to the buyer.
func (m *Mailer) SendOrderConfirmation(c Confirmation) error {
	var body bytes.Buffer
	if err := m.tmpl.Execute(&body, c); err != nil {
		return fmt.Errorf("rendering confirmation email: %w", err)
	}

	auth := smtp.PlainAuth("", m.address, m.password, m.host)
	addr := m.host + ":" + m.port

	if err := smtp.SendMail(addr, auth, m.address, []string{c.To}, body.Bytes()); err != nil {
		return fmt.Errorf("sending confirmation email to %s: %w", c.To, err)
	}

	return nil
}
