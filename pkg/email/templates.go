package email

import (
	"fmt"
	"html"
)

// RefundPaidEmailData contains the data needed for the refund receipt email.
type RefundPaidEmailData struct {
	PatientName string
	Email       string
	BillNumber  string
	Amount      string
	Method      string
	PaidAt      string
	ClinicName  string
	AppName     string
}

// BuildRefundPaidEmail creates the receipt a patient gets once a refund
// has been paid out.
func BuildRefundPaidEmail(data RefundPaidEmailData) Message {
	appName := data.AppName
	if appName == "" {
		appName = "Simorgh"
	}

	name := data.PatientName
	if name == "" {
		name = "there"
	}

	from := appName
	if data.ClinicName != "" {
		from = data.ClinicName
	}

	subject := fmt.Sprintf("Refund issued for bill %s", data.BillNumber)

	textBody := fmt.Sprintf(`Hi %s,

A refund of %s has been issued for bill %s.

Method: %s
Date:   %s

If you have questions about this refund, please contact the clinic.

Thanks,
%s`,
		name, data.Amount, data.BillNumber, data.Method, data.PaidAt, from)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2563eb;">Hi %s,</h2>
    <p>A refund has been issued for bill <strong>%s</strong>.</p>
    <table style="border-collapse: collapse; margin: 20px 0;">
        <tr><td style="padding: 4px 12px 4px 0; color: #6b7280;">Amount</td><td style="font-family: monospace; font-size: 16px;">%s</td></tr>
        <tr><td style="padding: 4px 12px 4px 0; color: #6b7280;">Method</td><td>%s</td></tr>
        <tr><td style="padding: 4px 12px 4px 0; color: #6b7280;">Date</td><td>%s</td></tr>
    </table>
    <p style="color: #6b7280; font-size: 14px;">If you have questions about this refund, please contact the clinic.</p>
    <p style="color: #6b7280; font-size: 14px; margin-top: 30px;">Thanks,<br>%s</p>
</body>
</html>`,
		html.EscapeString(name), html.EscapeString(data.BillNumber), html.EscapeString(data.Amount),
		html.EscapeString(data.Method), html.EscapeString(data.PaidAt), html.EscapeString(from))

	return Message{
		To:       []string{data.Email},
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	}
}
