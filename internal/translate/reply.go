package translate

import (
	"fmt"

	"github.com/spec-kit/chat-relay/internal/domain"
)

// detectReply resolves quoted-reply metadata. Providers express the same
// relationship in several shapes; the first one found wins:
//
//  1. a direct reference-message-id field
//  2. a structured quoted-message object
//  3. the replyTo alternate shape
//  4. a generic context-info object (stanzaId / quotedMessageId keys)
func detectReply(env *domain.InboundEnvelope) (refID, quotedText string, found bool) {
	if env.ReferenceMessageID != "" {
		refID = env.ReferenceMessageID
		if env.QuotedMessage != nil {
			quotedText = env.QuotedMessage.Text()
		}
		return refID, quotedText, true
	}

	if env.QuotedMessage != nil && env.QuotedMessage.ID != "" {
		return env.QuotedMessage.ID, env.QuotedMessage.Text(), true
	}

	if env.ReplyTo != nil {
		id := env.ReplyTo.MessageID
		if id == "" {
			id = env.ReplyTo.ID
		}
		if id != "" {
			return id, env.ReplyTo.Body, true
		}
	}

	if env.ContextInfo != nil {
		for _, key := range []string{"stanzaId", "quotedMessageId"} {
			if v, ok := env.ContextInfo[key].(string); ok && v != "" {
				quoted, _ := env.ContextInfo["quotedBody"].(string)
				return v, quoted, true
			}
		}
	}

	return "", "", false
}

// applyReply populates the reply metadata and, only when content would
// otherwise be empty, a human-readable reply line.
func applyReply(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	refID, quotedText, found := detectReply(env)
	if !found {
		return
	}

	out.Metadata[MetaInReplyTo] = refID
	if out.Content == "" {
		out.Content = fmt.Sprintf("in reply to %s: '%s'", refID, quotedText)
	}
}
