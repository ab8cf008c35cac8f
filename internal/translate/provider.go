package translate

import (
	"github.com/spec-kit/chat-relay/internal/domain"
)

// providerSendKinds maps attachment kinds to the provider send shapes that
// exist. Kinds with no mapping degrade to plain text.
var providerSendKinds = map[domain.ContentKind]struct{}{
	domain.KindImage:    {},
	domain.KindAudio:    {},
	domain.KindVideo:    {},
	domain.KindDocument: {},
}

// ToProvider converts a platform-originated outgoing message into a provider
// send request. The first attachment's kind selects the send shape; no
// attachments means a plain-text send. Pure; the degrade decision is reported
// so the caller can log it.
func ToProvider(msg *domain.PlatformOutbound) (req *domain.ProviderSendRequest, degraded bool) {
	req = &domain.ProviderSendRequest{
		To:   msg.ParticipantID,
		Kind: domain.KindText,
		Text: msg.Content,
	}

	if len(msg.Attachments) == 0 {
		return req, false
	}

	att := msg.Attachments[0]
	if _, ok := providerSendKinds[att.Kind]; !ok {
		return req, true
	}

	req.Kind = att.Kind
	req.MediaURL = att.URL
	req.Caption = msg.Content
	req.Text = ""
	// FileName stays empty: platform attachments carry no file name and the
	// provider substitutes its own default rather than this side guessing an
	// extension.
	return req, false
}
