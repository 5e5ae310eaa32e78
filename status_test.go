package filerelay

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 20), ProgressBar(0))
	assert.Equal(t, strings.Repeat("█", 10)+strings.Repeat("░", 10), ProgressBar(50))
	assert.Equal(t, strings.Repeat("█", 19)+"░", ProgressBar(99.9))
	assert.Equal(t, strings.Repeat("█", 20), ProgressBar(100))
	assert.Equal(t, strings.Repeat("█", 20), ProgressBar(140))
}

func TestProgressText(t *testing.T) {
	text := ProgressText(ProgressEvent{
		Phase:       PhaseUpload,
		Transferred: 512 * KiB,
		Total:       MiB,
		Elapsed:     time.Second,
	})

	assert.Contains(t, text, "Uploading")
	assert.Contains(t, text, "50.0%")
	assert.Contains(t, text, "512 KiB / 1.0 MiB")
	assert.Contains(t, text, "512 KiB/s")

	assert.Contains(t, ProgressText(ProgressEvent{Phase: PhaseDownload}), "Downloading")
}

func newTestResult(name string, streamable bool) *TransferResult {
	cls := Classify(name)
	return &TransferResult{
		Name:           name,
		Object:         ObjectRecord{Key: "uuid_" + name, ContentType: cls.MimeType, Size: 2 * MiB},
		Classification: cls,
		Link: AccessLink{
			URL:        "https://s3.us-east-1.wasabisys.com/bucket/uuid_" + url.PathEscape(name) + "?X-Amz-Signature=abc",
			Expires:    DefaultLinkExpiration,
			ExpiresAt:  time.Now().Add(DefaultLinkExpiration),
			Streamable: streamable,
		},
		Elapsed:      2 * time.Second,
		AverageSpeed: float64(MiB),
	}
}

func TestSuccessText(t *testing.T) {
	text := SuccessText(newTestResult("movie.mp4", true))

	assert.Contains(t, text, "Upload Successful")
	assert.Contains(t, text, "🎥 File: movie.mp4")
	assert.Contains(t, text, "2.0 MiB")
	assert.Contains(t, text, "2.0s")
	assert.Contains(t, text, "1.0 MiB/s")
	assert.Contains(t, text, "Link expires in 7 days")

	assert.Contains(t, SuccessText(newTestResult("song.mp3", true)), "🎵")
	assert.Contains(t, SuccessText(newTestResult("report.pdf", false)), "📄")
}

func TestFailureText(t *testing.T) {
	assert.Equal(t, "❌ Error: boom", FailureText(errors.New("boom")))
	assert.Contains(t, FailureText(nil), "unknown")
}

func TestActions(t *testing.T) {
	t.Run("streamable", func(t *testing.T) {
		res := newTestResult("movie.mp4", true)
		actions := Actions(res, "http://localhost:5000")

		require.Len(t, actions, 2)
		assert.Equal(t, "▶️ Stream Online", actions[0].Label)
		assert.True(t, strings.HasPrefix(actions[0].URL, "http://localhost:5000/player?url="))
		assert.Equal(t, "📥 Direct Download", actions[1].Label)
		assert.Equal(t, res.Link.URL, actions[1].URL)
	})

	t.Run("document", func(t *testing.T) {
		res := newTestResult("report.pdf", false)
		actions := Actions(res, "http://localhost:5000")

		require.Len(t, actions, 1)
		assert.Equal(t, "📥 Download File", actions[0].Label)
		assert.Equal(t, res.Link.URL, actions[0].URL)
	})
}
