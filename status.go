package filerelay

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const progressCells = 20

// Action is a link button offered to the user once a transfer succeeds.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ProgressBar renders percent as a bar of 20 cells, one per 5%.
func ProgressBar(percent float64) string {
	filled := int(percent / 5)
	if filled < 0 {
		filled = 0
	}
	if filled > progressCells {
		filled = progressCells
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", progressCells-filled)
}

func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

// ProgressText is the status message shown while a leg is running.
func ProgressText(ev ProgressEvent) string {
	title := "📥 Downloading..."
	if ev.Phase == PhaseUpload {
		title = "☁️ Uploading to cloud storage..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "%s %.1f%%\n\n", ProgressBar(ev.Percent()), ev.Percent())
	fmt.Fprintf(&b, "📊 %s / %s\n", humanize.IBytes(uint64(ev.Transferred)), humanize.IBytes(uint64(ev.Total)))
	fmt.Fprintf(&b, "⚡ Speed: %s", FormatSpeed(ev.Speed()))
	return b.String()
}

// SuccessText summarises a finished transfer.
func SuccessText(res *TransferResult) string {
	icon := "📄"
	switch res.Classification.MediaKind {
	case MediaVideo:
		icon = "🎥"
	case MediaAudio:
		icon = "🎵"
	}

	days := int64(res.Link.Expires / (24 * time.Hour))

	var b strings.Builder
	b.WriteString("✅ Upload Successful!\n\n")
	fmt.Fprintf(&b, "%s File: %s\n", icon, res.Name)
	fmt.Fprintf(&b, "📦 Size: %s\n", humanize.IBytes(uint64(res.Object.Size)))
	fmt.Fprintf(&b, "⏱️ Time: %.1fs\n", res.Elapsed.Seconds())
	fmt.Fprintf(&b, "⚡ Avg Speed: %s\n\n", FormatSpeed(res.AverageSpeed))
	fmt.Fprintf(&b, "⏰ Link expires in %d days (%s)", days, humanize.Time(res.Link.ExpiresAt))
	return b.String()
}

func FailureText(err error) string {
	if err == nil {
		return "❌ Error: unknown failure"
	}
	return "❌ Error: " + err.Error()
}

// Actions returns the buttons for a finished transfer: a player link plus the
// direct link for streamable media, the direct link alone otherwise.
func Actions(res *TransferResult, playerBase string) []Action {
	if res.Link.Streamable && playerBase != "" {
		return []Action{
			{Label: "▶️ Stream Online", URL: PlayerURL(playerBase, res.Link.URL, res.Name, res.Classification.MediaKind)},
			{Label: "📥 Direct Download", URL: res.Link.URL},
		}
	}

	return []Action{
		{Label: "📥 Download File", URL: res.Link.URL},
	}
}
