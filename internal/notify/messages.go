package notify

import (
	"fmt"
	"strings"

	"github.com/birdielabs/waveportal/internal/wave"
)

// Fixed subjects per message type.
const (
	subjectWelcome  = "Welcome to the Invoice Portal"
	subjectNewAlert = "You have a new invoice"
	subjectReminder = "Your Invoice Reminder"
)

func welcomeBody(firstName, email, portalURL string) string {
	return fmt.Sprintf(
		"Hi %s,\n\nWe've created your account. You can log in at:\n%s\n\nUsername: %s\nUse 'Lost your password' to set your password.\n\nThanks!",
		firstName, portalURL, email)
}

func newInvoiceBody(portalURL string) string {
	return fmt.Sprintf(
		"Hello,\n\nYou have a new unpaid invoice available in your portal:\n%s\n\nThank you!",
		portalURL)
}

func reminderBody(invoices []wave.Invoice, startDate, endDate, portalURL string) string {
	lines := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		lines = append(lines, fmt.Sprintf(
			"- Invoice ID: %s\n  Date: %s\n  Amount: $%s\n  Pay: %s",
			inv.ID, inv.CreatedDate(), wave.FormatCents(inv.AmountCents), inv.PDFURL))
	}

	return fmt.Sprintf(
		"Hello,\n\nHere are your unpaid invoices from %s to %s:\n\n%s\n\nYou can also view them anytime here:\n%s\n\nThanks!",
		startDate, endDate, strings.Join(lines, "\n\n"), portalURL)
}
