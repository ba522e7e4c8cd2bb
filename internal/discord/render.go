package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tunetrace/internal/history"
	"github.com/MrWong99/tunetrace/internal/navigator"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// TrackButtonPrefix is the custom_id prefix of every navigation button. The
// suffix is a [navigator.Action].
const TrackButtonPrefix = "track:"

// positionButtonID identifies the disabled "k of n" label button.
const positionButtonID = TrackButtonPrefix + "position"

const (
	embedColorMatch = 0x1DB954
	embedColorDone  = 0x95A5A6

	// maxDescription is Discord's embed description limit.
	maxDescription = 4096
)

var linkLabels = map[string]string{
	track.LinkSpotify:    "Spotify",
	track.LinkAppleMusic: "Apple Music",
	track.LinkYouTube:    "YouTube",
	track.LinkSongLink:   "song.link",
}

// ButtonID returns the custom_id of the navigation button for a.
func ButtonID(a navigator.Action) string {
	return TrackButtonPrefix + string(a)
}

// TrackMessage renders a navigation state as one track embed plus the
// navigation buttons.
func TrackMessage(st navigator.RenderState) Message {
	msg := Message{Content: st.Notice}

	switch {
	case st.Item != nil:
		msg.Embeds = []*discordgo.MessageEmbed{trackEmbed(*st.Item, st.Position())}
	case st.Exhausted:
		msg.Embeds = []*discordgo.MessageEmbed{{
			Title:       "All results shown",
			Description: fmt.Sprintf("You have seen all %d matches. Go back with Prev or list them with Show all.", st.Total),
			Color:       embedColorDone,
		}}
	}

	if st.NewSearch {
		msg.Content = "Upload another clip with `/identify` to start a new search."
	}
	if !st.Closed && st.Total > 0 {
		msg.Components = navigationRows(st)
	}
	return msg
}

// AllTracksMessage renders every result of a session in order as a single
// list embed.
func AllTracksMessage(st navigator.RenderState) Message {
	var b strings.Builder
	for i, c := range st.All {
		line := fmt.Sprintf("%d. %s\n", i+1, trackLine(c))
		if b.Len()+len(line) > maxDescription {
			break
		}
		b.WriteString(line)
	}
	return Message{Embeds: []*discordgo.MessageEmbed{{
		Title:       fmt.Sprintf("All matches (%d)", len(st.All)),
		Description: b.String(),
		Color:       embedColorMatch,
	}}}
}

// HistoryMessage renders past recognitions, newest first.
func HistoryMessage(entries []history.Entry) Message {
	if len(entries) == 0 {
		return Message{Content: "No recognitions yet in this channel."}
	}
	var b strings.Builder
	for _, e := range entries {
		var line string
		switch {
		case e.Outcome == history.OutcomeNoMatch || len(e.Tracks) == 0:
			line = fmt.Sprintf("<t:%d:R> no matches\n", e.RequestedAt.Unix())
		default:
			line = fmt.Sprintf("<t:%d:R> %s", e.RequestedAt.Unix(), trackLine(e.Tracks[0]))
			if more := len(e.Tracks) - 1; more > 0 {
				line += fmt.Sprintf(" (+%d more)", more)
			}
			line += "\n"
		}
		if b.Len()+len(line) > maxDescription {
			break
		}
		b.WriteString(line)
	}
	return Message{Embeds: []*discordgo.MessageEmbed{{
		Title:       "Recent recognitions",
		Description: b.String(),
		Color:       embedColorDone,
	}}}
}

// trackEmbed renders c. Without a title the artist becomes the heading.
func trackEmbed(c track.Candidate, position string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Color: embedColorMatch}
	switch {
	case !blank(c.Title):
		embed.Title = c.Title
		if !blank(c.Artist) {
			embed.Description = "by **" + c.Artist + "**"
		}
	default:
		embed.Title = c.Artist
	}
	if c.Album != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Album", Value: c.Album, Inline: true})
	}
	if c.ReleaseDate != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Released", Value: c.ReleaseDate, Inline: true})
	}
	if c.Confidence > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Confidence", Value: fmt.Sprintf("%.0f%%", c.Confidence), Inline: true,
		})
	}
	if links := linkLine(c); links != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Listen", Value: links})
	}
	if position != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Match " + position}
	}
	return embed
}

func trackLine(c track.Candidate) string {
	var line string
	if blank(c.Title) {
		line = "**" + c.Artist + "**"
	} else {
		line = "**" + c.Title + "**"
		if !blank(c.Artist) {
			line += " by " + c.Artist
		}
	}
	if c.Album != "" {
		line += " (" + c.Album + ")"
	}
	return line
}

func linkLine(c track.Candidate) string {
	names := c.LinkNames()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		label, ok := linkLabels[name]
		if !ok {
			label = name
		}
		parts = append(parts, fmt.Sprintf("[%s](%s)", label, c.Links[name]))
	}
	return strings.Join(parts, " · ")
}

func navigationRows(st navigator.RenderState) []discordgo.MessageComponent {
	position := st.Position()
	if position == "" {
		position = fmt.Sprintf("%d of %d", st.Total, st.Total)
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Prev",
				Style:    discordgo.SecondaryButton,
				CustomID: ButtonID(navigator.ActionPrev),
				Disabled: !st.CanPrev,
			},
			discordgo.Button{
				Label:    position,
				Style:    discordgo.SecondaryButton,
				CustomID: positionButtonID,
				Disabled: true,
			},
			discordgo.Button{
				Label:    "Next",
				Style:    discordgo.PrimaryButton,
				CustomID: ButtonID(navigator.ActionNext),
				Disabled: !st.CanNext,
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Show all",
				Style:    discordgo.SecondaryButton,
				CustomID: ButtonID(navigator.ActionShowAll),
				Disabled: !st.CanShowAll,
			},
			discordgo.Button{
				Label:    "New search",
				Style:    discordgo.SuccessButton,
				CustomID: ButtonID(navigator.ActionNewSearch),
			},
			discordgo.Button{
				Label:    "Close",
				Style:    discordgo.DangerButton,
				CustomID: ButtonID(navigator.ActionClose),
			},
		}},
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
