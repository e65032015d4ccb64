package app

import "smong-quiz-service/internal/domain"

// ScorePercentage rounds 100*score/maxScore to the nearest integer, halves up.
func ScorePercentage(score, maxScore int) int {
	if maxScore <= 0 || score <= 0 {
		return 0
	}
	return (200*score + maxScore) / (2 * maxScore)
}

// CertificateEligible reports whether a percentage earns a certificate.
func CertificateEligible(percentage int) bool {
	return percentage >= domain.CertificateThresholdPercent
}
