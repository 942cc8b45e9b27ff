package attendance

import "github.com/ce-seminars/backend/internal/models"

// checkEligible runs the registration half of the automatic guard chain, in order.
func checkEligible(reg *models.Registration) error {
	if reg.Status != models.RegistrationActive {
		return ErrInactiveRegistration
	}
	if reg.SessionsRemaining <= 0 {
		return ErrSessionsExhausted
	}
	if reg.QRScanCount >= models.MaxQRScans {
		return ErrScanCapReached
	}
	return nil
}

// checkSession verifies the session exists and belongs to the registration's seminar.
func checkSession(reg *models.Registration, session *models.Session) error {
	if session == nil {
		return ErrSessionNotFound
	}
	if session.SeminarID != reg.SeminarID {
		return ErrSeminarMismatch
	}
	return nil
}

// isMakeupSession decides whether an automatic check-in counts as a makeup.
// No makeup policy exists yet, so automatic check-ins are never makeups.
func isMakeupSession(*models.Registration, *models.Session) bool {
	return false
}
