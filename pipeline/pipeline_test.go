package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"tubedigest/fetch"
	"tubedigest/model"
)

type fakeSource struct {
	videos        map[model.ChannelID][]model.Video
	listErr       map[model.ChannelID]error
	transcripts   map[model.VideoID]string
	transcriptErr map[model.VideoID]error
	limits        []int
}

func (f *fakeSource) RecentVideos(_ context.Context, channelID model.ChannelID, limit int) ([]model.Video, error) {
	f.limits = append(f.limits, limit)
	if err := f.listErr[channelID]; err != nil {
		return nil, err
	}

	return f.videos[channelID], nil
}

func (f *fakeSource) Transcript(_ context.Context, videoID model.VideoID) (string, error) {
	if err := f.transcriptErr[videoID]; err != nil {
		return "", err
	}
	transcript, ok := f.transcripts[videoID]
	if !ok {
		return "", fetch.ErrTranscriptUnavailable
	}

	return transcript, nil
}

type fakeSummarizer struct {
	failOn     map[string]bool
	digestErr  error
	digestText string
	digests    [][]string
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ model.ChannelID, text string, _, _ int) (string, error) {
	if f.failOn[text] {
		return "", errors.New("model overloaded")
	}

	return fmt.Sprintf("summary of %s", text), nil
}

func (f *fakeSummarizer) Digest(_ context.Context, entries []string, _ int) (string, error) {
	f.digests = append(f.digests, entries)
	if f.digestErr != nil {
		return "", f.digestErr
	}

	return f.digestText, nil
}

type fakeNotifier struct {
	failContains string
	sent         []string
}

func (f *fakeNotifier) Deliver(_ context.Context, text string) error {
	if f.failContains != "" && strings.Contains(text, f.failContains) {
		return errors.New("flood limit exceeded")
	}
	f.sent = append(f.sent, text)

	return nil
}

type fakeStore struct {
	processed map[model.VideoID]time.Time
	loadErr   error
	addErr    error
	added     map[model.VideoID]time.Time
}

func (f *fakeStore) Load(_ context.Context) (map[model.VideoID]time.Time, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	loaded := map[model.VideoID]time.Time{}
	for id, ts := range f.processed {
		loaded[id] = ts
	}

	return loaded, nil
}

func (f *fakeStore) Add(_ context.Context, id model.VideoID, notifiedAt time.Time) error {
	if f.addErr != nil {
		return f.addErr
	}
	if f.added == nil {
		f.added = map[model.VideoID]time.Time{}
	}
	f.added[id] = notifiedAt

	return nil
}

func video(id, title string, channelID model.ChannelID) model.Video {
	return model.Video{
		ID:          model.VideoID(id),
		ChannelID:   channelID,
		Title:       title,
		PublishedAt: time.Now(),
	}
}

func newTestPipeline(cfg Config, source *fakeSource, summarizer *fakeSummarizer, notifier *fakeNotifier, store *fakeStore) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard))

	return NewPipeline(cfg, source, source, summarizer, notifier, store, logger)
}

func TestRunScenario(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("v1", "first", "C1"), video("v2", "second", "C1")},
		},
		transcripts: map[model.VideoID]string{
			"v1": "talk one",
			"v2": "talk two",
		},
	}
	summarizer := &fakeSummarizer{}
	notifier := &fakeNotifier{}
	store := &fakeStore{}
	cfg := Config{
		Channels:        []model.ChannelID{"C1"},
		MaxPerChannel:   2,
		SummaryMaxWords: 500,
	}

	report := newTestPipeline(cfg, source, summarizer, notifier, store).Run(context.Background())

	assert.Equal(t, 2, report.VideosSeen)
	assert.Equal(t, 2, report.NotificationsSent)
	assert.Equal(t, 0, report.NotificationsFailed)
	require.Len(t, notifier.sent, 2)
	assert.Contains(t, notifier.sent[0], "*first*")
	assert.Contains(t, notifier.sent[0], "summary of talk one")
	assert.Contains(t, notifier.sent[0], "https://www.youtube.com/watch?v=v1")
	require.Contains(t, store.added, model.VideoID("v1"))
	require.Contains(t, store.added, model.VideoID("v2"))

	// second run with the persisted set and the same source output
	store2 := &fakeStore{processed: store.added}
	notifier2 := &fakeNotifier{}
	report2 := newTestPipeline(cfg, source, summarizer, notifier2, store2).Run(context.Background())

	assert.Equal(t, 0, report2.VideosSeen)
	assert.Equal(t, 0, report2.NotificationsSent)
	assert.Empty(t, notifier2.sent)
}

func TestRunSkipsProcessedVideos(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("old", "old", "C1"), video("new", "new", "C1")},
		},
		transcripts: map[model.VideoID]string{
			"old": "seen before",
			"new": "fresh",
		},
	}
	notifier := &fakeNotifier{}
	store := &fakeStore{processed: map[model.VideoID]time.Time{"old": time.Now()}}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 5, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, notifier, store).Run(context.Background())

	assert.Equal(t, 1, report.VideosSeen)
	assert.Equal(t, 1, report.NotificationsSent)
	require.Len(t, notifier.sent, 1)
	assert.NotContains(t, notifier.sent[0], "watch?v=old")
}

func TestRunIsolatesTranscriptFailure(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("a", "a", "C1"), video("b", "b", "C1"), video("c", "c", "C1")},
		},
		transcripts: map[model.VideoID]string{
			"a": "text a",
			"c": "text c",
		},
		transcriptErr: map[model.VideoID]error{
			"b": errors.New("connection reset"),
		},
	}
	notifier := &fakeNotifier{}
	store := &fakeStore{}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 3, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, notifier, store).Run(context.Background())

	assert.Equal(t, 3, report.VideosSeen)
	assert.Equal(t, 1, report.SkippedNoTranscript)
	assert.Equal(t, 2, report.NotificationsSent)
	assert.Contains(t, store.added, model.VideoID("a"))
	assert.NotContains(t, store.added, model.VideoID("b"))
	assert.Contains(t, store.added, model.VideoID("c"))
}

func TestRunCountsMissingTranscriptAsSkip(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("mute", "no captions", "C1")},
		},
	}
	store := &fakeStore{}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 1, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, &fakeNotifier{}, store).Run(context.Background())

	assert.Equal(t, 1, report.SkippedNoTranscript)
	assert.Equal(t, 0, report.NotificationsSent)
	assert.Empty(t, store.added)
}

func TestRunIsolatesSummarizeFailure(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("x", "x", "C1"), video("y", "y", "C1")},
		},
		transcripts: map[model.VideoID]string{
			"x": "bad text",
			"y": "good text",
		},
	}
	summarizer := &fakeSummarizer{failOn: map[string]bool{"bad text": true}}
	store := &fakeStore{}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 2, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, summarizer, &fakeNotifier{}, store).Run(context.Background())

	assert.Equal(t, 1, report.SkippedSummarizeError)
	assert.Equal(t, 1, report.NotificationsSent)
	assert.NotContains(t, store.added, model.VideoID("x"))
	assert.Contains(t, store.added, model.VideoID("y"))
}

func TestRunKeepsFailedDeliveryEligible(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("d", "d", "C1")},
		},
		transcripts: map[model.VideoID]string{"d": "text d"},
	}
	notifier := &fakeNotifier{failContains: "watch?v=d"}
	store := &fakeStore{}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 1, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, notifier, store).Run(context.Background())

	assert.Equal(t, 0, report.NotificationsSent)
	assert.Equal(t, 1, report.NotificationsFailed)
	assert.NotContains(t, store.added, model.VideoID("d"))

	// a later run with the same source output attempts d again
	notifier.failContains = ""
	report2 := newTestPipeline(cfg, source, &fakeSummarizer{}, notifier, store).Run(context.Background())

	assert.Equal(t, 1, report2.NotificationsSent)
	assert.Contains(t, store.added, model.VideoID("d"))
}

func TestRunBoundsWorkPerChannel(t *testing.T) {
	videos := make([]model.Video, 0, 10)
	transcripts := map[model.VideoID]string{}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("v%d", i)
		videos = append(videos, video(id, id, "C1"))
		transcripts[model.VideoID(id)] = fmt.Sprintf("text %d", i)
	}
	// a sloppy source that ignores the requested limit
	source := &fakeSource{
		videos:      map[model.ChannelID][]model.Video{"C1": videos},
		transcripts: transcripts,
	}
	store := &fakeStore{}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 3, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, &fakeNotifier{}, store).Run(context.Background())

	assert.Equal(t, []int{3}, source.limits)
	assert.Equal(t, 3, report.VideosSeen)
	assert.Equal(t, 3, report.NotificationsSent)
}

func TestRunSkipsChannelOnListError(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C2": {video("ok", "ok", "C2")},
		},
		listErr: map[model.ChannelID]error{
			"C1": errors.New("quota exceeded"),
		},
		transcripts: map[model.VideoID]string{"ok": "text"},
	}
	store := &fakeStore{}
	cfg := Config{Channels: []model.ChannelID{"C1", "C2"}, MaxPerChannel: 1, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, &fakeNotifier{}, store).Run(context.Background())

	assert.Equal(t, 1, report.VideosSeen)
	assert.Equal(t, 1, report.NotificationsSent)
}

func TestRunTreatsLoadFailureAsColdStart(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("v1", "v1", "C1")},
		},
		transcripts: map[model.VideoID]string{"v1": "text"},
	}
	store := &fakeStore{loadErr: errors.New("file corrupt")}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 1, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, &fakeNotifier{}, store).Run(context.Background())

	assert.Equal(t, 1, report.NotificationsSent)
	assert.Contains(t, store.added, model.VideoID("v1"))
}

func TestRunDropsVideosPastMaxAge(t *testing.T) {
	fresh := video("fresh", "fresh", "C1")
	stale := video("stale", "stale", "C1")
	stale.PublishedAt = time.Now().Add(-72 * time.Hour)
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{"C1": {fresh, stale}},
		transcripts: map[model.VideoID]string{
			"fresh": "text",
			"stale": "text",
		},
	}
	store := &fakeStore{}
	cfg := Config{
		Channels:        []model.ChannelID{"C1"},
		MaxPerChannel:   2,
		SummaryMaxWords: 500,
		MaxVideoAge:     48 * time.Hour,
	}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, &fakeNotifier{}, store).Run(context.Background())

	assert.Equal(t, 1, report.VideosSeen)
	assert.Contains(t, store.added, model.VideoID("fresh"))
	assert.NotContains(t, store.added, model.VideoID("stale"))
}

func TestRunSendsDigest(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("v1", "first", "C1"), video("v2", "second", "C1")},
		},
		transcripts: map[model.VideoID]string{
			"v1": "talk one",
			"v2": "talk two",
		},
	}
	summarizer := &fakeSummarizer{digestText: "the roundup"}
	notifier := &fakeNotifier{}
	cfg := Config{
		Channels:        []model.ChannelID{"C1"},
		MaxPerChannel:   2,
		SummaryMaxWords: 500,
		Digest:          true,
	}

	newTestPipeline(cfg, source, summarizer, notifier, &fakeStore{}).Run(context.Background())

	require.Len(t, summarizer.digests, 1)
	assert.Len(t, summarizer.digests[0], 2)
	assert.Contains(t, summarizer.digests[0][0], "first:")
	require.Len(t, notifier.sent, 3)
	assert.Contains(t, notifier.sent[2], "the roundup")
}

func TestRunSkipsDigestWithoutDeliveries(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("mute", "mute", "C1")},
		},
	}
	summarizer := &fakeSummarizer{digestText: "the roundup"}
	notifier := &fakeNotifier{}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 1, SummaryMaxWords: 500, Digest: true}

	newTestPipeline(cfg, source, summarizer, notifier, &fakeStore{}).Run(context.Background())

	assert.Empty(t, summarizer.digests)
	assert.Empty(t, notifier.sent)
}

func TestRunKeepsSentVideoInMemoryOnStoreError(t *testing.T) {
	source := &fakeSource{
		videos: map[model.ChannelID][]model.Video{
			"C1": {video("v1", "v1", "C1")},
		},
		transcripts: map[model.VideoID]string{"v1": "text"},
	}
	store := &fakeStore{addErr: errors.New("disk full")}
	notifier := &fakeNotifier{}
	cfg := Config{Channels: []model.ChannelID{"C1"}, MaxPerChannel: 1, SummaryMaxWords: 500}

	report := newTestPipeline(cfg, source, &fakeSummarizer{}, notifier, store).Run(context.Background())

	// the message went out, so the run still counts it as sent
	assert.Equal(t, 1, report.NotificationsSent)
	assert.Len(t, notifier.sent, 1)
}
