package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrTooLarge is returned when an attachment exceeds the upload limit.
	ErrTooLarge = errors.New("attachment too large")

	// ErrNotAudio is returned when an attachment is neither an audio nor a
	// video file.
	ErrNotAudio = errors.New("attachment is not an audio file")
)

// audioExtensions lists the file extensions accepted without an audio or
// video content type.
var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".oga": true, ".opus": true,
	".flac": true, ".m4a": true, ".aac": true, ".wma": true, ".aif": true,
	".aiff": true, ".webm": true, ".mp4": true, ".mov": true, ".mkv": true,
}

// IsAudio reports whether an attachment looks like something the decoder
// can read, judged by content type first and file extension second.
func IsAudio(filename, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") {
		return true
	}
	return audioExtensions[strings.ToLower(filepath.Ext(filename))]
}

// CheckAttachment validates an attachment before it is downloaded.
func CheckAttachment(a *discordgo.MessageAttachment, maxBytes int64) error {
	if a == nil {
		return errors.New("no attachment")
	}
	if maxBytes > 0 && int64(a.Size) > maxBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, a.Size, maxBytes)
	}
	if !IsAudio(a.Filename, a.ContentType) {
		return fmt.Errorf("%w: %s", ErrNotAudio, a.Filename)
	}
	return nil
}

// FirstAttachment returns the attachment passed to an application command.
// It prefers the attachment referenced by the first attachment option and
// falls back to any resolved attachment. Returns nil if there is none or the
// interaction is not an application command.
func FirstAttachment(i *discordgo.InteractionCreate) *discordgo.MessageAttachment {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	data := i.ApplicationCommandData()
	if data.Resolved == nil || len(data.Resolved.Attachments) == 0 {
		return nil
	}
	for _, opt := range data.Options {
		if opt.Type != discordgo.ApplicationCommandOptionAttachment {
			continue
		}
		if id, ok := opt.Value.(string); ok {
			if a, ok := data.Resolved.Attachments[id]; ok {
				return a
			}
		}
	}
	for _, a := range data.Resolved.Attachments {
		return a
	}
	return nil
}

// DownloadAttachment fetches an attachment body, refusing more than maxBytes
// (0 means no limit) even when Discord under-reported the size.
func DownloadAttachment(ctx context.Context, client *http.Client, a *discordgo.MessageAttachment, maxBytes int64) ([]byte, error) {
	if a == nil {
		return nil, errors.New("attachment is nil")
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment: unexpected status %s", resp.Status)
	}

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
