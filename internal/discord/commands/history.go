package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tunetrace/internal/discord"
)

// handleHistory handles /history [limit].
func (tc *TrackCommands) handleHistory(s discord.Responder, i *discordgo.InteractionCreate) {
	if !tc.perms.Allowed(i) {
		discord.RespondEphemeral(s, i, msgNotAllowed)
		return
	}

	limit := 0
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "limit" && opt.Type == discordgo.ApplicationCommandOptionInteger {
			limit = int(opt.IntValue())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := tc.svc.History(ctx, identity(i), limit)
	if err != nil {
		slog.Warn("discord: history lookup failed", "identity", identity(i), "err", err)
		discord.RespondEphemeral(s, i, "History is unavailable right now.")
		return
	}
	discord.RespondMessage(s, i, discord.HistoryMessage(entries))
}
