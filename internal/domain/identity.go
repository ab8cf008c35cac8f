package domain

import (
	"strings"
	"time"
	"unicode"
)

// IdentityMapping is the durable link between a provider-side participant and
// the platform-side contact/conversation pair. The conversation id must
// reference a conversation in open status for reuse. At most one active
// mapping exists per participant.
type IdentityMapping struct {
	ParticipantID          string    `json:"participantId"`
	PlatformContactID      int       `json:"platformContactId"`
	PlatformConversationID int       `json:"platformConversationId"`
	DisplayName            string    `json:"displayName,omitempty"`
	LastMessageAt          time.Time `json:"lastMessageAt"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// NormalizeParticipantID reduces a phone-number participant id to digits only.
// Provider ids often arrive as "5511999999999@c.us" or "+55 11 99999-9999".
func NormalizeParticipantID(raw string) string {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
