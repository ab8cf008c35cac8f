package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spec-kit/chat-relay/internal/domain"
	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

// Context carries translation inputs that are not part of the envelope.
type Context struct {
	// SourceTag identifies the originating system in provenance metadata.
	SourceTag string
}

// Metadata keys written under the provenance namespace. Platform-native
// fields are never overwritten.
const (
	MetaSource        = "relay_source"
	MetaMessageID     = "relay_message_id"
	MetaMessageType   = "relay_message_type"
	MetaMimeType      = "relay_mime_type"
	MetaLatitude      = "relay_latitude"
	MetaLongitude     = "relay_longitude"
	MetaPollOptions   = "relay_poll_options"
	MetaReactionTo    = "relay_reaction_to"
	MetaSelectionID   = "relay_selection_id"
	MetaVCard         = "relay_vcard"
	MetaInReplyTo     = "in_reply_to_external_id"
	MetaUnknownFields = "relay_unknown_fields"
)

// ToPlatform converts a provider envelope into the platform message-creation
// payload. Pure: no I/O, no shared state. A panic inside a content handler is
// re-raised as a TranslationError carrying the message id and type; callers
// must not deliver a message that failed translation.
func ToPlatform(env *domain.InboundEnvelope, tctx Context) (out *domain.OutboundMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = apperrors.NewTranslationError(env.MessageID, env.Type, fmt.Errorf("content handler panic: %v", r))
		}
	}()

	out = &domain.OutboundMessage{
		ContentType: "text",
		Direction:   domain.DirectionIncoming,
		DedupeToken: env.MessageID,
		Metadata: map[string]any{
			MetaSource:      tctx.SourceTag,
			MetaMessageID:   env.MessageID,
			MetaMessageType: env.Type,
		},
	}

	kind := env.Kind()
	handler, ok := handlers[kind]
	if !ok {
		handler = handleUnsupported
	}
	handler(env, out)

	applyReply(env, out)

	return out, nil
}

type contentHandler func(*domain.InboundEnvelope, *domain.OutboundMessage)

// One handler per content variant, selected by the envelope's populated
// field in the fixed priority order encoded in Kind().
var handlers = map[domain.ContentKind]contentHandler{
	domain.KindText:        handleText,
	domain.KindImage:       mediaHandler(domain.KindImage, "[Image]", func(e *domain.InboundEnvelope) *domain.MediaContent { return e.Image }),
	domain.KindAudio:       mediaHandler(domain.KindAudio, "[Audio Message]", func(e *domain.InboundEnvelope) *domain.MediaContent { return e.Audio }),
	domain.KindVideo:       mediaHandler(domain.KindVideo, "[Video]", func(e *domain.InboundEnvelope) *domain.MediaContent { return e.Video }),
	domain.KindDocument:    handleDocument,
	domain.KindLocation:    handleLocation,
	domain.KindContactCard: handleContactCard,
	domain.KindSticker:     mediaHandler(domain.KindSticker, "[Sticker]", func(e *domain.InboundEnvelope) *domain.MediaContent { return e.Sticker }),
	domain.KindPoll:        handlePoll,
	domain.KindReaction:    handleReaction,
	domain.KindButtonReply: handleButtonReply,
	domain.KindListReply:   handleListReply,
}

func handleText(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	out.Content = env.Text.Value()
	if out.Content == "" {
		out.Content = "[Empty Message]"
	}
}

// mediaHandler builds a handler for caption-plus-URL media kinds. The caption
// becomes the content when present, otherwise the typed placeholder.
func mediaHandler(kind domain.ContentKind, placeholder string, pick func(*domain.InboundEnvelope) *domain.MediaContent) contentHandler {
	return func(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
		media := pick(env)
		out.Content = media.Caption
		if out.Content == "" {
			out.Content = placeholder
		}
		if media.MimeType != "" {
			out.Metadata[MetaMimeType] = media.MimeType
		}
		if u := media.ResolveURL(); u != "" {
			out.Attachments = append(out.Attachments, domain.Attachment{
				Kind:         kind,
				URL:          u,
				ThumbnailURL: media.ThumbnailURL,
			})
		}
	}
}

// handleDocument reads file name and URL through their alias ladders. A
// missing file name stays a generic placeholder; an extension is never
// guessed or appended.
func handleDocument(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	doc := env.Document
	name := doc.ResolveName()
	if name == "" {
		name = "[Document]"
	}

	out.Content = doc.Caption
	if out.Content == "" {
		out.Content = name
	}
	if doc.MimeType != "" {
		out.Metadata[MetaMimeType] = doc.MimeType
	}
	out.Metadata["relay_file_name"] = name
	if u := doc.ResolveURL(); u != "" {
		out.Attachments = append(out.Attachments, domain.Attachment{
			Kind: domain.KindDocument,
			URL:  u,
		})
	}
}

// handleLocation synthesizes a map link when the provider supplies none.
func handleLocation(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	loc := env.Location

	label := loc.Name
	if label == "" {
		label = loc.Address
	}
	mapURL := loc.URL
	if mapURL == "" {
		mapURL = fmt.Sprintf("https://www.google.com/maps?q=%f,%f", loc.Latitude, loc.Longitude)
	}

	if label != "" {
		out.Content = fmt.Sprintf("[Location] %s\n%s", label, mapURL)
	} else {
		out.Content = fmt.Sprintf("[Location] %s", mapURL)
	}
	out.Metadata[MetaLatitude] = loc.Latitude
	out.Metadata[MetaLongitude] = loc.Longitude
}

func handleContactCard(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	card := env.ContactCard
	if card.DisplayName != "" {
		out.Content = fmt.Sprintf("[Contact] %s", card.DisplayName)
	} else {
		out.Content = "[Contact Card]"
	}
	if card.VCard != "" {
		out.Metadata[MetaVCard] = card.VCard
	}
}

func handlePoll(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	poll := env.Poll
	if poll.Name != "" {
		out.Content = fmt.Sprintf("[Poll] %s", poll.Name)
	} else {
		out.Content = "[Poll]"
	}
	if len(poll.Options) > 0 {
		out.Content += "\n- " + strings.Join(poll.Options, "\n- ")
		out.Metadata[MetaPollOptions] = poll.Options
	}
}

func handleReaction(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	reaction := env.Reaction
	glyph := reaction.Value()
	if glyph == "" {
		out.Content = "[Reaction removed]"
	} else {
		out.Content = fmt.Sprintf("[Reaction] %s", glyph)
	}
	if reaction.TargetMessageID != "" {
		out.Metadata[MetaReactionTo] = reaction.TargetMessageID
	}
}

func handleButtonReply(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	interactiveReply(env.ButtonReply, "[Button Reply]", out)
}

func handleListReply(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	interactiveReply(env.ListReply, "[List Reply]", out)
}

func interactiveReply(sel *domain.InteractiveReply, placeholder string, out *domain.OutboundMessage) {
	out.Content = sel.Label()
	if out.Content == "" {
		out.Content = placeholder
	}
	if sel.ID != "" {
		out.Metadata[MetaSelectionID] = sel.ID
	}
}

// handleUnsupported keeps unknown types flowing instead of dropping them. All
// unrecognized top-level fields are preserved for forensic replay.
func handleUnsupported(env *domain.InboundEnvelope, out *domain.OutboundMessage) {
	out.Content = fmt.Sprintf("[Unsupported message type: %s]", env.Type)
	if len(env.Extra) > 0 {
		fields := map[string]any{}
		for k, v := range env.Extra {
			var val any
			if err := json.Unmarshal(v, &val); err == nil {
				fields[k] = val
			} else {
				fields[k] = string(v)
			}
		}
		out.Metadata[MetaUnknownFields] = fields
	}
}
