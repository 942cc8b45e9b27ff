package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/ce-seminars/backend/internal/models"
)

func greeting(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Hello,"
	}
	return "Dear " + name + ","
}

func confirmationBody(name, title string, reg *models.Registration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nYou are registered for %s.\n", greeting(name), title)
	if reg.StartSessionDate != nil {
		fmt.Fprintf(&b, "Your first session is on %s.\n", reg.StartSessionDate.Format("Monday, January 2, 2006"))
	}
	fmt.Fprintf(&b, "The series has %d sessions and each attended session earns %d CE credits.\n",
		models.SessionsPerSeminar, models.CreditsPerSession)
	b.WriteString("Bring the QR code from your registration page to every session.\n")
	return b.String()
}

func cancellationBody(name, title string, reg *models.Registration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nYour registration for %s has been cancelled.\n", greeting(name), title)
	if reg.Notes != "" {
		fmt.Fprintf(&b, "Reason: %s\n", reg.Notes)
	}
	if reg.SessionsCompleted > 0 {
		fmt.Fprintf(&b, "The %d CE credits you earned remain on your record.\n", reg.SessionsCompleted*models.CreditsPerSession)
	}
	return b.String()
}

func completionBody(name, title string, completed int) string {
	return fmt.Sprintf("%s\n\nYou attended all %d sessions of %s and earned %d CE credits.\n",
		greeting(name), completed, title, completed*models.CreditsPerSession)
}

func waitlistBody(name, title string, expiresAt time.Time) string {
	return fmt.Sprintf("%s\n\nA seat is now available in %s. It is held for you until %s.\n",
		greeting(name), title, expiresAt.UTC().Format("Jan 2, 2006 15:04 MST"))
}
