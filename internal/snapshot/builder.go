// Package snapshot assembles the flat attribute bag policies are evaluated
// against.
package snapshot

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"sengol/internal/domain"
)

// Attribute names derived by the builder.
const (
	VendorDomain    = "vendorDomain"
	RiskScore       = "riskScore"
	ComplianceScore = "complianceScore"
	SengolScore     = "sengolScore"
	LetterGrade     = "letterGrade"
)

var websiteKeys = []string{"website", "vendorWebsite", "url"}

// FromAssessment builds a snapshot from stored attributes plus the derived
// vendor domain and any stored scores. Stored attributes win over derived ones.
func FromAssessment(a domain.Assessment) domain.Snapshot {
	snap := FromAttributes(a.Attributes)
	setIfAbsent(snap, RiskScore, a.Scores.RiskScore)
	setIfAbsent(snap, ComplianceScore, a.Scores.ComplianceScore)
	setIfAbsent(snap, SengolScore, a.Scores.SengolScore)
	if a.Scores.LetterGrade != nil {
		if _, ok := snap[LetterGrade]; !ok {
			snap[LetterGrade] = *a.Scores.LetterGrade
		}
	}
	return snap
}

// FromAttributes copies attrs, dropping null values, and derives vendorDomain.
func FromAttributes(attrs map[string]any) domain.Snapshot {
	snap := make(domain.Snapshot, len(attrs)+1)
	for k, v := range attrs {
		if v == nil {
			continue
		}
		snap[k] = v
	}
	if _, ok := snap[VendorDomain]; !ok {
		for _, k := range websiteKeys {
			s, ok := snap[k].(string)
			if !ok {
				continue
			}
			if d := RegistrableDomain(s); d != "" {
				snap[VendorDomain] = d
				break
			}
		}
	}
	return snap
}

// RegistrableDomain returns the eTLD+1 of a URL or bare host, or "" when the
// input has no usable host.
func RegistrableDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

func setIfAbsent(snap domain.Snapshot, key string, v *int) {
	if v == nil {
		return
	}
	if _, ok := snap[key]; ok {
		return
	}
	snap[key] = *v
}
