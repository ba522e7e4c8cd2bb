// Package commands implements the tunetrace slash commands and navigation
// buttons.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tunetrace/internal/app"
	"github.com/MrWong99/tunetrace/internal/discord"
	"github.com/MrWong99/tunetrace/internal/history"
	"github.com/MrWong99/tunetrace/internal/navigator"
	"github.com/MrWong99/tunetrace/internal/recognize"
	"github.com/MrWong99/tunetrace/internal/session"
	"github.com/MrWong99/tunetrace/pkg/audio"
)

// User-facing messages.
const (
	msgNotAllowed  = "You are not allowed to use this bot."
	msgNoFile      = "Attach an audio file to identify."
	msgNoSession   = "No active results, please submit audio first."
	msgDecode      = "Could not process this file."
	msgUnavailable = "Recognition service unavailable, please try again later."
	msgFailed      = "Recognition failed, please try again."
	msgDownload    = "Could not download the file."
	msgNoMatches   = "No matches found."
)

// identifyTimeout bounds one /identify request end to end.
const identifyTimeout = 3 * time.Minute

// Service is the recognition surface the commands drive. *app.Service
// implements it.
type Service interface {
	SubmitAudio(ctx context.Context, id session.Identity, input []byte) (app.Outcome, error)
	Navigate(id session.Identity, action navigator.Action) (navigator.RenderState, error)
	History(ctx context.Context, id session.Identity, limit int) ([]history.Entry, error)
}

var _ Service = (*app.Service)(nil)

// TrackCommands holds the dependencies for /identify, /results, /history and
// the track navigation buttons.
type TrackCommands struct {
	svc       Service
	perms     *discord.PermissionChecker
	maxUpload int64
	client    *http.Client
}

// TrackOption configures [TrackCommands].
type TrackOption func(*TrackCommands)

// WithMaxUpload caps the attachment size. 0 disables the cap.
func WithMaxUpload(n int64) TrackOption {
	return func(tc *TrackCommands) { tc.maxUpload = n }
}

// WithHTTPClient sets the client attachments are downloaded with.
func WithHTTPClient(c *http.Client) TrackOption {
	return func(tc *TrackCommands) { tc.client = c }
}

// NewTrackCommands creates a TrackCommands and registers its handlers with
// the bot's router.
func NewTrackCommands(bot *discord.Bot, svc Service, opts ...TrackOption) *TrackCommands {
	tc := newTrackCommands(svc, bot.Permissions(), opts...)
	tc.Register(bot.Router())
	return tc
}

func newTrackCommands(svc Service, perms *discord.PermissionChecker, opts ...TrackOption) *TrackCommands {
	tc := &TrackCommands{
		svc:    svc,
		perms:  perms,
		client: &http.Client{Timeout: time.Minute},
	}
	for _, o := range opts {
		o(tc)
	}
	return tc
}

// Register registers the commands and the button prefix with the router.
func (tc *TrackCommands) Register(router *discord.CommandRouter) {
	for _, def := range tc.Definitions() {
		switch def.Name {
		case "identify":
			router.RegisterCommand(def.Name, def, tc.handleIdentify)
		case "results":
			router.RegisterCommand(def.Name, def, tc.handleResults)
		case "history":
			router.RegisterCommand(def.Name, def, tc.handleHistory)
		}
	}
	router.RegisterComponentPrefix(discord.TrackButtonPrefix, tc.handleButton)
}

// Definitions returns the ApplicationCommand definitions for Discord.
func (tc *TrackCommands) Definitions() []*discordgo.ApplicationCommand {
	minLimit := float64(1)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "identify",
			Description: "Identify the music in an audio clip",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionAttachment,
				Name:        "file",
				Description: "Audio or video file to analyse",
				Required:    true,
			}},
		},
		{
			Name:        "results",
			Description: "Show the current match of this channel's last search",
		},
		{
			Name:        "history",
			Description: "List recent recognitions in this channel",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "limit",
				Description: "Number of entries to show",
				MinValue:    &minLimit,
				MaxValue:    25,
			}},
		},
	}
}

// handleIdentify handles /identify.
func (tc *TrackCommands) handleIdentify(s discord.Responder, i *discordgo.InteractionCreate) {
	if !tc.perms.Allowed(i) {
		discord.RespondEphemeral(s, i, msgNotAllowed)
		return
	}

	att := FirstAttachment(i)
	if att == nil {
		discord.RespondEphemeral(s, i, msgNoFile)
		return
	}
	if err := CheckAttachment(att, tc.maxUpload); err != nil {
		discord.RespondEphemeral(s, i, attachmentMessage(err))
		return
	}

	// Decoding and recognition take a while.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), identifyTimeout)
	defer cancel()

	id := identity(i)
	log := slog.With("identity", id, "file", att.Filename)

	data, err := DownloadAttachment(ctx, tc.client, att, tc.maxUpload)
	if err != nil {
		log.Warn("attachment download failed", "err", err)
		msg := msgDownload
		if errors.Is(err, ErrTooLarge) {
			msg = attachmentMessage(err)
		}
		discord.EditReply(s, i, discord.Message{Content: msg})
		return
	}

	out, err := tc.svc.SubmitAudio(ctx, id, data)
	if err != nil {
		discord.EditReply(s, i, discord.Message{Content: failureMessage(err)})
		return
	}
	if out.NoMatch {
		discord.EditReply(s, i, discord.Message{Content: msgNoMatches})
		return
	}

	msg := discord.TrackMessage(out.Render)
	msg.Content = fmt.Sprintf("Found %d %s in `%s`.", out.Matches, plural(out.Matches, "match", "matches"), att.Filename)
	discord.EditReply(s, i, msg)
}

// handleResults handles /results: it re-renders the current match without
// moving the cursor.
func (tc *TrackCommands) handleResults(s discord.Responder, i *discordgo.InteractionCreate) {
	if !tc.perms.Allowed(i) {
		discord.RespondEphemeral(s, i, msgNotAllowed)
		return
	}
	st, err := tc.svc.Navigate(identity(i), navigator.ActionCurrent)
	if err != nil {
		discord.RespondEphemeral(s, i, navigateMessage(err))
		return
	}
	discord.RespondMessage(s, i, discord.TrackMessage(st))
}

// handleButton handles every track:* navigation button.
func (tc *TrackCommands) handleButton(s discord.Responder, i *discordgo.InteractionCreate) {
	if !tc.perms.Allowed(i) {
		discord.RespondEphemeral(s, i, msgNotAllowed)
		return
	}

	raw := strings.TrimPrefix(i.MessageComponentData().CustomID, discord.TrackButtonPrefix)
	action, err := navigator.ParseAction(raw)
	if err != nil {
		discord.RespondEphemeral(s, i, "Unknown button.")
		return
	}

	st, err := tc.svc.Navigate(identity(i), action)
	if err != nil {
		discord.RespondEphemeral(s, i, navigateMessage(err))
		return
	}

	if action == navigator.ActionShowAll {
		discord.RespondMessage(s, i, discord.AllTracksMessage(st))
		return
	}
	discord.UpdateMessage(s, i, discord.TrackMessage(st))
}

// identity keys sessions by channel so everyone in a channel browses the
// same results.
func identity(i *discordgo.InteractionCreate) session.Identity {
	return session.Identity(i.ChannelID)
}

func attachmentMessage(err error) string {
	switch {
	case errors.Is(err, ErrTooLarge):
		return "That file is too large to analyse."
	case errors.Is(err, ErrNotAudio):
		return "That does not look like an audio file."
	default:
		return msgNoFile
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, audio.ErrDecode):
		return msgDecode
	case errors.Is(err, recognize.ErrGatewayUnavailable):
		return msgUnavailable
	default:
		return msgFailed
	}
}

func navigateMessage(err error) string {
	if errors.Is(err, session.ErrAbsent) {
		return msgNoSession
	}
	slog.Warn("discord: navigate failed", "err", err)
	return msgFailed
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
