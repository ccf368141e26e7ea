package domain

import "time"

// CertificateStatus is the closed set of states a FitnessCertificate can
// carry. EXPIRED is derived, never stored: a VALID certificate becomes
// EXPIRED the instant now passes ExpiresAt.
type CertificateStatus string

const (
	CertificateValid     CertificateStatus = "VALID"
	CertificateExpired   CertificateStatus = "EXPIRED"
	CertificateSuspended CertificateStatus = "SUSPENDED"
	CertificateRevoked   CertificateStatus = "REVOKED"
)

// FitnessCertificate records a fitness-for-service window for a trainset.
// At most one certificate per trainset may be effectively VALID at a
// given instant; neither store backend checks this on write.
type FitnessCertificate struct {
	ID               string
	TrainsetID       string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	Status           CertificateStatus
	IssuingAuthority string
}

// EffectiveStatus derives EXPIRED from the stored status and now,
// without mutating the record (expiry is never written back by readers).
func (c FitnessCertificate) EffectiveStatus(now time.Time) CertificateStatus {
	if c.Status == CertificateValid && now.After(c.ExpiresAt) {
		return CertificateExpired
	}
	return c.Status
}

// IsEffectivelyValid reports whether this certificate can be relied on
// as of now.
func (c FitnessCertificate) IsEffectivelyValid(now time.Time) bool {
	return c.EffectiveStatus(now) == CertificateValid
}
