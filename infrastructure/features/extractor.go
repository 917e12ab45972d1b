package features

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

// EncryptedEntropyThreshold is the entropy above which a payload counts as encrypted
const EncryptedEntropyThreshold = 7.0

// minBase64Length is the length a payload must exceed to count as base64
const minBase64Length = 20

var suspiciousTokens = []string{
	// code injection / SQL
	"eval", "exec", "system", "shell", "cmd", "script",
	"union", "select", "drop", "insert", "update", "delete",
	// health data
	"patient", "medical", "phi", "ssn", "dob", "mrn",
	// malware / ransom
	"trojan", "backdoor", "malware", "virus", "ransomware",
	"encrypt", "decrypt", "bitcoin", "ransom",
}

var defaultMedicalDevicePrefixes = []string{
	"10.100.", "10.200.", "172.20.", "172.21.",
	"192.168.100.", "192.168.200.",
}

var (
	base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

	patientDataPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), // SSN
		regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`), // date
		regexp.MustCompile(`(?i)\bmrn\s*[:=]\s*\d+`),
		regexp.MustCompile(`(?i)\bpatient\s+id\s*[:=]\s*\d+`),
		regexp.MustCompile(`(?i)\bdob\s*[:=]`),
		regexp.MustCompile(`(?i)\bphi\b`),
	}
)

// DefaultMedicalDevicePrefixes returns the address prefixes of the
// hospital's medical-device subnets
func DefaultMedicalDevicePrefixes() []string {
	prefixes := make([]string, len(defaultMedicalDevicePrefixes))
	copy(prefixes, defaultMedicalDevicePrefixes)
	return prefixes
}

// SuspiciousTokens returns the vocabulary counted by SuspiciousStringCount
func SuspiciousTokens() []string {
	tokens := make([]string, len(suspiciousTokens))
	copy(tokens, suspiciousTokens)
	return tokens
}

// Extractor derives FeatureVectors from raw events
type Extractor struct {
	medicalPrefixes []string
	location        *time.Location
	now             func() time.Time
}

// Option configures an Extractor
type Option func(*Extractor)

// WithMedicalDevicePrefixes replaces the medical-device subnet prefixes
func WithMedicalDevicePrefixes(prefixes []string) Option {
	return func(e *Extractor) {
		if len(prefixes) > 0 {
			e.medicalPrefixes = append([]string(nil), prefixes...)
		}
	}
}

// WithLocation sets the time zone used for timeOfDay and dayOfWeek
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithClock sets the time source used for events without a timestamp
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExtractor creates an extractor. Defaults: stock medical prefixes, UTC, wall clock.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		medicalPrefixes: DefaultMedicalDevicePrefixes(),
		location:        time.UTC,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract computes the feature vector of event. It never fails; absent
// optional fields take their documented defaults.
func (e *Extractor) Extract(event entity.RawEvent) entity.FeatureVector {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	ts = ts.In(e.location)

	entropy := PayloadEntropy(event.Payload)
	medicalSource := e.IsMedicalDevice(event.SourceIP)
	patientData := IsPatientData(event.Payload)

	return entity.FeatureVector{
		PacketSize:            event.PacketSize,
		ConnectionDuration:    common.Float64ValueOr(event.ConnectionDuration, entity.DefaultConnectionDuration),
		BytesTransferred:      event.BytesTransferred,
		PacketsPerSecond:      event.PacketsPerSecond,
		UniquePorts:           common.IntValueOr(event.UniquePorts, entity.DefaultUniquePorts),
		ProtocolDiversity:     common.Float64ValueOr(event.ProtocolDiversity, entity.DefaultProtocolDiversity),
		PayloadEntropy:        entropy,
		SuspiciousStrings:     SuspiciousStringCount(event.Payload),
		TimeOfDay:             ts.Hour(),
		DayOfWeek:             int(ts.Weekday()),
		SourceReputation:      common.Float64ValueOr(event.SourceReputation, entity.DefaultReputation),
		DestinationReputation: common.Float64ValueOr(event.DestinationReputation, entity.DefaultReputation),
		GeographicDistance:    common.Float64ValueOr(event.GeographicDistance, entity.DefaultGeographicDistance),
		IsEncrypted:           entropy > EncryptedEntropyThreshold,
		HasBase64:             HasBase64(event.Payload),
		IsMedicalDevice:       medicalSource,
		IsPatientData:         patientData,
		HIPAARelevant:         patientData || medicalSource || e.IsMedicalDevice(event.DestinationIP),
	}
}

// IsMedicalDevice reports whether addr lies in a medical-device subnet
func (e *Extractor) IsMedicalDevice(addr string) bool {
	for _, prefix := range e.medicalPrefixes {
		if strings.HasPrefix(addr, prefix) {
			return true
		}
	}
	return false
}

// PayloadEntropy is the base-2 Shannon entropy of the payload's byte
// distribution. The result lies in [0, log2(min(256, len(payload)))].
func PayloadEntropy(payload string) float64 {
	if len(payload) == 0 {
		return 0
	}

	var freq [256]int
	for i := 0; i < len(payload); i++ {
		freq[payload[i]]++
	}

	length := float64(len(payload))
	entropy := 0.0
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// SuspiciousStringCount sums the case-insensitive, non-overlapping
// occurrences of every vocabulary token. Tokens are counted independently,
// so "ransomware" also counts as "ransom".
func SuspiciousStringCount(payload string) int {
	if payload == "" {
		return 0
	}
	lower := strings.ToLower(payload)
	count := 0
	for _, token := range suspiciousTokens {
		count += strings.Count(lower, token)
	}
	return count
}

// HasBase64 reports whether payload is longer than 20 characters and made
// only of base64 characters with at most two trailing '=' pads
func HasBase64(payload string) bool {
	return len(payload) > minBase64Length && base64Pattern.MatchString(payload)
}

// IsPatientData reports whether payload looks like it carries PHI
func IsPatientData(payload string) bool {
	for _, pattern := range patientDataPatterns {
		if pattern.MatchString(payload) {
			return true
		}
	}
	return false
}
