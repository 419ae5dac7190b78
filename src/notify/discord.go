package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	colorNeutral = 0x5865F2
	colorGood    = 0x2ECC71
	colorWarn    = 0xF1C40F
	colorBad     = 0xE74C3C
)

// ChannelSender is the slice of *discordgo.Session the sink uses.
type ChannelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts moderation alerts to a channel.
type DiscordSink struct {
	session   ChannelSender
	channelID string
	publicURL string
}

// NewDiscordSession opens a REST-only bot session; no gateway connection is needed to post.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	return discordgo.New("Bot " + token)
}

func NewDiscordSink(session ChannelSender, channelID, publicURL string) *DiscordSink {
	return &DiscordSink{session: session, channelID: channelID, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *DiscordSink) Name() string { return "discord" }

func (s *DiscordSink) Send(ctx context.Context, e Event) error {
	_, err := s.session.ChannelMessageSendEmbed(s.channelID, s.embed(e), discordgo.WithContext(ctx))
	return err
}

func (s *DiscordSink) embed(e Event) *discordgo.MessageEmbed {
	em := &discordgo.MessageEmbed{
		Title:     string(e.Type),
		Color:     colorNeutral,
		Timestamp: e.At.Format(time.RFC3339),
	}
	add := func(name, value string) {
		if value != "" {
			em.Fields = append(em.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: true})
		}
	}

	switch e.Type {
	case SubmissionFlagged:
		em.Color = colorBad
		em.Description = fmt.Sprintf("%q was flagged for priority review.", e.Title)
	case SubmissionQueued:
		em.Description = fmt.Sprintf("%q is waiting for review.", e.Title)
	case SubmissionDecided:
		em.Color = colorWarn
		em.Description = fmt.Sprintf("%q was marked %s.", e.Title, e.Status)
	case CertificateIssued:
		em.Color = colorGood
		em.Description = fmt.Sprintf("Certificate issued for %q.", e.Title)
		if e.VerificationID != "" && s.publicURL != "" {
			em.URL = s.publicURL + "/verify/" + e.VerificationID
		}
	case CertificateRevoked:
		em.Color = colorBad
		em.Description = fmt.Sprintf("Certificate for %q was revoked.", e.Title)
	}
	add("Submission", e.SubmissionID)
	add("Verification ID", e.VerificationID)
	add("Status", e.Status)
	add("Notes", truncate(e.Notes, 1024))
	return em
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
