package intake

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/chat-relay/internal/domain"
	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

// Field aliases, highest priority first. Provider schema drift is handled by
// trying each alias in order rather than rejecting unknown shapes.
var (
	participantAliases = []string{"participantId", "participant", "phone", "from", "chatId"}
	messageIDAliases   = []string{"messageId", "id", "message_id"}
	typeAliases        = []string{"type", "messageType", "event"}
	fromMeAliases      = []string{"fromMe", "from_me", "self"}
	groupAliases       = []string{"isGroup", "is_group", "group"}
	timestampAliases   = []string{"timestamp", "ts", "messageTimestamp"}
	pushNameAliases    = []string{"pushName", "displayName", "notifyName", "senderName"}
	statusAliases      = []string{"status", "ack", "state"}
)

// contentKeys maps envelope content fields to their top-level JSON keys.
var contentKeys = []string{
	"text", "image", "audio", "video", "document", "location",
	"contact", "sticker", "poll", "reaction", "buttonReply", "listReply",
}

var replyKeys = []string{"referenceMessageId", "quotedMessage", "replyTo", "contextInfo"}

// strictEnvelope is the strict tier: only the minimal required fields, all of
// which must be present under their primary names. Extra fields never fail
// decoding.
type strictEnvelope struct {
	ParticipantID *string `json:"participantId"`
	MessageID     *string `json:"messageId"`
	Type          *string `json:"type"`
	FromMe        *bool   `json:"fromMe"`
}

// DecodeMessage validates and decodes a raw inbound provider event. A strict
// schema is attempted first; on failure, a maximally permissive fallback
// resolves the four required fields through their alias ladders. Anything
// missing after both tiers is a validation error.
func DecodeMessage(body []byte) (*domain.InboundEnvelope, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewValidationError("malformed json body", nil)
	}

	env := &domain.InboundEnvelope{}

	var strict strictEnvelope
	if err := json.Unmarshal(body, &strict); err == nil &&
		strict.ParticipantID != nil && strict.MessageID != nil &&
		strict.Type != nil && strict.FromMe != nil {
		env.ParticipantID = *strict.ParticipantID
		env.MessageID = *strict.MessageID
		env.Type = *strict.Type
		env.FromMe = *strict.FromMe
	} else if err := decodePermissive(raw, env); err != nil {
		return nil, err
	}

	env.IsGroup = lookupBool(raw, groupAliases)
	env.Timestamp = lookupTimestamp(raw, timestampAliases)
	env.PushName = lookupString(raw, pushNameAliases)

	decodeContent(raw, env)
	decodeReply(raw, env)
	env.Extra = collectExtras(raw)

	return env, nil
}

// DecodeStatus validates and decodes a provider delivery-status event.
func DecodeStatus(body []byte) (*domain.StatusEvent, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewValidationError("malformed json body", nil)
	}

	evt := &domain.StatusEvent{
		MessageID:     lookupString(raw, messageIDAliases),
		ParticipantID: lookupString(raw, participantAliases),
		Status:        lookupStatus(raw),
		Timestamp:     lookupTimestamp(raw, timestampAliases),
	}
	missing := []string{}
	if evt.MessageID == "" {
		missing = append(missing, "messageId")
	}
	if evt.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required fields",
			map[string]any{"missing": missing})
	}
	return evt, nil
}

// decodePermissive resolves the four required fields through alias ladders.
func decodePermissive(raw map[string]json.RawMessage, env *domain.InboundEnvelope) error {
	env.ParticipantID = lookupString(raw, participantAliases)
	env.MessageID = lookupString(raw, messageIDAliases)
	env.Type = lookupString(raw, typeAliases)
	fromMe, ok := lookupBoolPresent(raw, fromMeAliases)
	env.FromMe = fromMe

	missing := []string{}
	if env.ParticipantID == "" {
		missing = append(missing, "participantId")
	}
	if env.MessageID == "" {
		missing = append(missing, "messageId")
	}
	if env.Type == "" {
		missing = append(missing, "type")
	}
	if !ok {
		missing = append(missing, "fromMe")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields",
			map[string]any{"missing": missing})
	}
	return nil
}

func decodeContent(raw map[string]json.RawMessage, env *domain.InboundEnvelope) {
	unmarshalInto(raw, "text", &env.Text)
	unmarshalInto(raw, "image", &env.Image)
	unmarshalInto(raw, "audio", &env.Audio)
	unmarshalInto(raw, "video", &env.Video)
	unmarshalInto(raw, "document", &env.Document)
	unmarshalInto(raw, "location", &env.Location)
	unmarshalInto(raw, "contact", &env.ContactCard)
	unmarshalInto(raw, "sticker", &env.Sticker)
	unmarshalInto(raw, "poll", &env.Poll)
	unmarshalInto(raw, "reaction", &env.Reaction)
	unmarshalInto(raw, "buttonReply", &env.ButtonReply)
	unmarshalInto(raw, "listReply", &env.ListReply)
}

func decodeReply(raw map[string]json.RawMessage, env *domain.InboundEnvelope) {
	if v, ok := raw["referenceMessageId"]; ok {
		_ = json.Unmarshal(v, &env.ReferenceMessageID)
	}
	unmarshalInto(raw, "quotedMessage", &env.QuotedMessage)
	unmarshalInto(raw, "replyTo", &env.ReplyTo)
	if v, ok := raw["contextInfo"]; ok {
		_ = json.Unmarshal(v, &env.ContextInfo)
	}
}

// collectExtras returns all top-level fields not claimed by the envelope
// schema, preserved raw for forensic replay.
func collectExtras(raw map[string]json.RawMessage) map[string]json.RawMessage {
	known := map[string]struct{}{}
	for _, groups := range [][]string{
		participantAliases, messageIDAliases, typeAliases, fromMeAliases,
		groupAliases, timestampAliases, pushNameAliases, contentKeys, replyKeys,
	} {
		for _, k := range groups {
			known[k] = struct{}{}
		}
	}

	extras := map[string]json.RawMessage{}
	for k, v := range raw {
		if _, ok := known[k]; !ok {
			extras[k] = v
		}
	}
	if len(extras) == 0 {
		return nil
	}
	return extras
}

func unmarshalInto[T any](raw map[string]json.RawMessage, key string, dst **T) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		return
	}
	*dst = &out
}

func lookupString(raw map[string]json.RawMessage, aliases []string) string {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}
		// Numbers are tolerated for id-like fields.
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func lookupBool(raw map[string]json.RawMessage, aliases []string) bool {
	b, _ := lookupBoolPresent(raw, aliases)
	return b
}

func lookupBoolPresent(raw map[string]json.RawMessage, aliases []string) (bool, bool) {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			return b, true
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if parsed, err := strconv.ParseBool(s); err == nil {
				return parsed, true
			}
		}
	}
	return false, false
}

func lookupTimestamp(raw map[string]json.RawMessage, aliases []string) time.Time {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var n int64
		if err := json.Unmarshal(v, &n); err == nil && n > 0 {
			// Millisecond timestamps are thirteen digits.
			if n > 1e12 {
				return time.UnixMilli(n).UTC()
			}
			return time.Unix(n, 0).UTC()
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// ack codes used by providers that report numeric delivery states.
var ackStatus = map[string]string{
	"0": "pending",
	"1": "sent",
	"2": "delivered",
	"3": "read",
	"4": "played",
}

func lookupStatus(raw map[string]json.RawMessage) string {
	s := lookupString(raw, statusAliases)
	if mapped, ok := ackStatus[s]; ok {
		return mapped
	}
	return strings.ToLower(s)
}
