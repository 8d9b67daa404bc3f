package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"tubedigest/model"
)

// ErrTranscriptUnavailable means the video has no captions in any of the
// requested languages. This is a normal outcome, not a broken call.
var ErrTranscriptUnavailable = errors.New("transcript unavailable")

var captionTracksExp = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// Transcripts scrapes the caption track of a video from its watch page. The
// Data API does not expose captions to API-key clients, so this goes the same
// route the browser player does: the captionTracks list embedded in the page,
// then the timedtext document it points at.
type Transcripts struct {
	client *http.Client
	langs  []string
}

// NewTranscripts takes caption languages in priority order, e.g. ["ru", "en"].
func NewTranscripts(langs []string) *Transcripts {
	if len(langs) == 0 {
		langs = []string{"en"}
	}

	return &Transcripts{
		client: &http.Client{Timeout: 30 * time.Second},
		langs:  langs,
	}
}

func (t *Transcripts) Transcript(ctx context.Context, videoID model.VideoID) (string, error) {
	page, err := t.get(ctx, fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID))
	if err != nil {
		return "", fmt.Errorf("failed to fetch watch page for %s: %w", videoID, err)
	}

	tracks, err := parseCaptionTracks(page)
	if err != nil {
		return "", fmt.Errorf("failed to parse caption tracks for %s: %w", videoID, err)
	}
	track, ok := pickTrack(tracks, t.langs)
	if !ok {
		return "", ErrTranscriptUnavailable
	}

	body, err := t.get(ctx, track.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch timedtext for %s: %w", videoID, err)
	}

	text, err := parseTimedText(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse timedtext for %s: %w", videoID, err)
	}
	if text == "" {
		return "", ErrTranscriptUnavailable
	}

	return text, nil
}

func (t *Transcripts) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func parseCaptionTracks(page []byte) ([]captionTrack, error) {
	match := captionTracksExp.FindSubmatch(page)
	if match == nil {
		// no captions section at all on the page
		return nil, nil
	}

	var tracks []captionTrack
	if err := json.Unmarshal(match[1], &tracks); err != nil {
		return nil, err
	}

	return tracks, nil
}

// pickTrack honors the language priority order and prefers human captions
// over auto-generated ("asr") ones within a language.
func pickTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	for _, lang := range langs {
		var fallback *captionTrack
		for i, track := range tracks {
			if !strings.HasPrefix(track.LanguageCode, lang) {
				continue
			}
			if track.Kind != "asr" {
				return track, true
			}
			if fallback == nil {
				fallback = &tracks[i]
			}
		}
		if fallback != nil {
			return *fallback, true
		}
	}

	return captionTrack{}, false
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

func parseTimedText(body []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", err
	}

	segments := make([]string, 0, len(doc.Texts))
	for _, segment := range doc.Texts {
		// timedtext entity-escapes twice, so one round remains after the
		// xml decoder
		clean := strings.Join(strings.Fields(html.UnescapeString(segment.Value)), " ")
		if clean == "" {
			continue
		}
		segments = append(segments, clean)
	}

	return strings.Join(segments, " "), nil
}
