package gateway

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

const EventMessageCreate = "message_create"

// Envelope is the JSON document posted downstream for each mirrored message.
type Envelope struct {
	Event       string       `json:"event"`
	Message     Message      `json:"message"`
	Timestamp   string       `json:"timestamp"`
	Attachments []Attachment `json:"attachments"`
}

type Author struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Bot        bool   `json:"bot"`
}

type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Content   string `json:"content"`
	Author    Author `json:"author"`
	CreatedAt string `json:"created_at,omitempty"`
}

type Attachment struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ProxyURL    string `json:"proxy_url,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// NewEnvelope builds the forward payload for msg. The envelope timestamp is
// the relay's receive time; the message creation time is kept on the message.
func NewEnvelope(msg *discordgo.Message, receivedAt time.Time) Envelope {
	envelope := Envelope{
		Event:       EventMessageCreate,
		Timestamp:   receivedAt.UTC().Format(time.RFC3339Nano),
		Attachments: []Attachment{},
	}
	if msg == nil {
		return envelope
	}
	envelope.Message = Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Content:   msg.Content,
	}
	if !msg.Timestamp.IsZero() {
		envelope.Message.CreatedAt = msg.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if msg.Author != nil {
		envelope.Message.Author = Author{
			ID:         msg.Author.ID,
			Username:   msg.Author.Username,
			GlobalName: msg.Author.GlobalName,
			Bot:        msg.Author.Bot,
		}
	}
	for _, attachment := range msg.Attachments {
		if attachment == nil {
			continue
		}
		envelope.Attachments = append(envelope.Attachments, Attachment{
			ID:          attachment.ID,
			URL:         attachment.URL,
			ProxyURL:    attachment.ProxyURL,
			Filename:    attachment.Filename,
			ContentType: attachment.ContentType,
			Size:        attachment.Size,
			Width:       attachment.Width,
			Height:      attachment.Height,
		})
	}
	return envelope
}
