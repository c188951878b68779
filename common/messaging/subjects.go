package messaging

import "strings"

// Envelope subjects. Hard crashes get their own subject so consumers can
// prioritise them over regular events.
const (
	// DefaultSubjectPrefix is the subject root used when none is configured.
	DefaultSubjectPrefix = "beacon"

	SubjectEnvelopesCrash = DefaultSubjectPrefix + ".envelopes.crash"
	SubjectEnvelopesEvent = DefaultSubjectPrefix + ".envelopes.event"

	envelopesCrashSuffix = "envelopes.crash"
	envelopesEventSuffix = "envelopes.event"
	envelopesWildcard    = "envelopes.>"
)

// EnvelopeSubject returns the subject an envelope is published to.
func EnvelopeSubject(prefix string, hardCrashed bool) string {
	prefix = normalizePrefix(prefix)
	if hardCrashed {
		return prefix + "." + envelopesCrashSuffix
	}
	return prefix + "." + envelopesEventSuffix
}

// EnvelopeSubjects returns the wildcard subject covering every envelope
// published under prefix.
func EnvelopeSubjects(prefix string) string {
	return normalizePrefix(prefix) + "." + envelopesWildcard
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return DefaultSubjectPrefix
	}
	return prefix
}
