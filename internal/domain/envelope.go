package domain

import (
	"encoding/json"
	"time"
)

// ContentKind identifies the single content variant carried by an envelope.
type ContentKind string

const (
	KindText        ContentKind = "text"
	KindImage       ContentKind = "image"
	KindAudio       ContentKind = "audio"
	KindVideo       ContentKind = "video"
	KindDocument    ContentKind = "document"
	KindLocation    ContentKind = "location"
	KindContactCard ContentKind = "contact-card"
	KindSticker     ContentKind = "sticker"
	KindPoll        ContentKind = "poll"
	KindReaction    ContentKind = "reaction"
	KindButtonReply ContentKind = "button-reply"
	KindListReply   ContentKind = "list-reply"
	KindUnsupported ContentKind = "unsupported"
)

// TextContent carries a plain text body. Providers disagree on the field
// name, so both are accepted.
type TextContent struct {
	Message string `json:"message,omitempty"`
	Body    string `json:"body,omitempty"`
}

// Value returns the text body regardless of which alias the provider used.
func (t TextContent) Value() string {
	if t.Message != "" {
		return t.Message
	}
	return t.Body
}

// MediaContent covers image, audio, video and sticker payloads.
type MediaContent struct {
	URL          string `json:"url,omitempty"`
	MediaURL     string `json:"mediaUrl,omitempty"`
	Caption      string `json:"caption,omitempty"`
	MimeType     string `json:"mimetype,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// ResolveURL returns the first populated URL alias.
func (m MediaContent) ResolveURL() string {
	if m.URL != "" {
		return m.URL
	}
	return m.MediaURL
}

// DocumentContent carries file payloads. File name and URL each have several
// provider aliases.
type DocumentContent struct {
	FileName    string `json:"fileName,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Title       string `json:"title,omitempty"`
	DocumentURL string `json:"documentUrl,omitempty"`
	URL         string `json:"url,omitempty"`
	FileURL     string `json:"fileUrl,omitempty"`
	Caption     string `json:"caption,omitempty"`
	MimeType    string `json:"mimetype,omitempty"`
}

// ResolveName returns the first populated file-name alias, or empty.
func (d DocumentContent) ResolveName() string {
	for _, v := range []string{d.FileName, d.Filename, d.Title} {
		if v != "" {
			return v
		}
	}
	return ""
}

// ResolveURL returns the first populated URL alias, or empty.
func (d DocumentContent) ResolveURL() string {
	for _, v := range []string{d.DocumentURL, d.URL, d.FileURL} {
		if v != "" {
			return v
		}
	}
	return ""
}

// LocationContent carries geographic coordinates.
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
	URL       string  `json:"url,omitempty"`
}

// ContactCardContent carries a shared contact (vCard).
type ContactCardContent struct {
	DisplayName string `json:"displayName,omitempty"`
	VCard       string `json:"vcard,omitempty"`
}

// PollContent carries a poll question and its options.
type PollContent struct {
	Name    string   `json:"name,omitempty"`
	Options []string `json:"options,omitempty"`
}

// ReactionContent carries an emoji reaction to an earlier message.
type ReactionContent struct {
	Emoji           string `json:"emoji,omitempty"`
	Text            string `json:"text,omitempty"`
	TargetMessageID string `json:"messageId,omitempty"`
}

// Value returns the reaction glyph regardless of alias.
func (r ReactionContent) Value() string {
	if r.Emoji != "" {
		return r.Emoji
	}
	return r.Text
}

// InteractiveReply carries a button or list selection.
type InteractiveReply struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Label returns the human-readable selection.
func (i InteractiveReply) Label() string {
	if i.Title != "" {
		return i.Title
	}
	return i.Text
}

// QuotedMessage is the structured quoted-message reply shape.
type QuotedMessage struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
	Body    string `json:"body,omitempty"`
}

// Text returns the quoted body regardless of alias.
func (q QuotedMessage) Text() string {
	if q.Content != "" {
		return q.Content
	}
	return q.Body
}

// ReplyTo is an alternative provider-specific reply shape.
type ReplyTo struct {
	MessageID string `json:"messageId,omitempty"`
	ID        string `json:"id,omitempty"`
	Body      string `json:"body,omitempty"`
}

// InboundEnvelope is one provider-native webhook event. Content fields are
// mutually exclusive; Kind() selects the populated one in a fixed priority
// order. Unrecognized top-level fields are preserved in Extra for forensic
// replay.
type InboundEnvelope struct {
	ParticipantID string    `json:"participantId"`
	MessageID     string    `json:"messageId"`
	Type          string    `json:"type"`
	FromMe        bool      `json:"fromMe"`
	IsGroup       bool      `json:"isGroup,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	PushName      string    `json:"pushName,omitempty"`

	Text        *TextContent        `json:"text,omitempty"`
	Image       *MediaContent       `json:"image,omitempty"`
	Audio       *MediaContent       `json:"audio,omitempty"`
	Video       *MediaContent       `json:"video,omitempty"`
	Document    *DocumentContent    `json:"document,omitempty"`
	Location    *LocationContent    `json:"location,omitempty"`
	ContactCard *ContactCardContent `json:"contact,omitempty"`
	Sticker     *MediaContent       `json:"sticker,omitempty"`
	Poll        *PollContent        `json:"poll,omitempty"`
	Reaction    *ReactionContent    `json:"reaction,omitempty"`
	ButtonReply *InteractiveReply   `json:"buttonReply,omitempty"`
	ListReply   *InteractiveReply   `json:"listReply,omitempty"`

	// Reply metadata alternatives, checked in this order.
	ReferenceMessageID string         `json:"referenceMessageId,omitempty"`
	QuotedMessage      *QuotedMessage `json:"quotedMessage,omitempty"`
	ReplyTo            *ReplyTo       `json:"replyTo,omitempty"`
	ContextInfo        map[string]any `json:"contextInfo,omitempty"`

	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// Kind classifies the envelope by the populated content field, evaluated in
// the fixed priority order.
func (e *InboundEnvelope) Kind() ContentKind {
	switch {
	case e.Text != nil:
		return KindText
	case e.Image != nil:
		return KindImage
	case e.Audio != nil:
		return KindAudio
	case e.Video != nil:
		return KindVideo
	case e.Document != nil:
		return KindDocument
	case e.Location != nil:
		return KindLocation
	case e.ContactCard != nil:
		return KindContactCard
	case e.Sticker != nil:
		return KindSticker
	case e.Poll != nil:
		return KindPoll
	case e.Reaction != nil:
		return KindReaction
	case e.ButtonReply != nil:
		return KindButtonReply
	case e.ListReply != nil:
		return KindListReply
	default:
		return KindUnsupported
	}
}

// StatusEvent is a provider delivery-status update for an earlier message.
type StatusEvent struct {
	MessageID     string    `json:"messageId"`
	ParticipantID string    `json:"participantId,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}
