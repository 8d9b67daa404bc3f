package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"tubedigest/fetch"
	"tubedigest/model"
	"tubedigest/notify"
)

type VideoLister interface {
	RecentVideos(ctx context.Context, channelID model.ChannelID, limit int) ([]model.Video, error)
}

type TranscriptFetcher interface {
	Transcript(ctx context.Context, videoID model.VideoID) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, channelID model.ChannelID, text string, maxWords, minWords int) (string, error)
	Digest(ctx context.Context, entries []string, maxWords int) (string, error)
}

type Notifier interface {
	Deliver(ctx context.Context, text string) error
}

// ProcessedStore is the durable set of video ids that have been notified.
// Add is called right after a confirmed delivery, so a crash mid-run cannot
// cause an already-sent video to be sent again on the next run.
type ProcessedStore interface {
	Load(ctx context.Context) (map[model.VideoID]time.Time, error)
	Add(ctx context.Context, id model.VideoID, notifiedAt time.Time) error
}

type Config struct {
	Channels        []model.ChannelID
	MaxPerChannel   int
	SummaryMaxWords int
	SummaryMinWords int
	MaxVideoAge     time.Duration // 0 disables the age cutoff
	NotifyInterval  time.Duration
	Digest          bool
}

type Pipeline struct {
	cfg         Config
	lister      VideoLister
	transcripts TranscriptFetcher
	summarizer  Summarizer
	notifier    Notifier
	store       ProcessedStore
	logger      *slog.Logger
	now         func() time.Time
}

func NewPipeline(cfg Config, lister VideoLister, transcripts TranscriptFetcher, summarizer Summarizer, notifier Notifier, store ProcessedStore, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		lister:      lister,
		transcripts: transcripts,
		summarizer:  summarizer,
		notifier:    notifier,
		store:       store,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one pass over all configured channels. Every per-video failure
// is terminal for that video only, never for the run.
func (p *Pipeline) Run(ctx context.Context) model.RunReport {
	logger := p.logger.With(slog.String("run", uuid.New().String()))
	report := model.RunReport{}

	processed, err := p.store.Load(ctx)
	if err != nil {
		logger.Warn("could not load processed set, starting empty", slog.String("error", err.Error()))
		processed = map[model.VideoID]time.Time{}
	}
	logger.Info("starting run", slog.Int("channels", len(p.cfg.Channels)), slog.Int("processed", len(processed)))

	delivered := make([]model.Summary, 0)
	for _, channelID := range p.cfg.Channels {
		videos, err := p.lister.RecentVideos(ctx, channelID, p.cfg.MaxPerChannel)
		if err != nil {
			logger.Error("failed to list videos", slog.String("channel", string(channelID)), slog.String("error", err.Error()))
			continue
		}
		if len(videos) > p.cfg.MaxPerChannel {
			videos = videos[:p.cfg.MaxPerChannel]
		}

		for _, video := range videos {
			if _, ok := processed[video.ID]; ok {
				continue
			}
			if p.tooOld(video) {
				continue
			}
			report.VideosSeen++

			summary, ok := p.processVideo(ctx, logger, video, &report)
			if !ok {
				continue
			}
			processed[video.ID] = summary.GeneratedAt
			delivered = append(delivered, summary)
			p.pause(ctx)
		}
	}

	if p.cfg.Digest && len(delivered) > 0 {
		p.sendDigest(ctx, logger, delivered)
	}

	logger.Info("run finished",
		slog.Int("seen", report.VideosSeen),
		slog.Int("no_transcript", report.SkippedNoTranscript),
		slog.Int("summarize_errors", report.SkippedSummarizeError),
		slog.Int("sent", report.NotificationsSent),
		slog.Int("failed", report.NotificationsFailed))

	return report
}

// processVideo runs transcript, summary and delivery for one video. It
// reports true only when the notification was confirmed delivered and the id
// recorded in the in-memory set by the caller.
func (p *Pipeline) processVideo(ctx context.Context, logger *slog.Logger, video model.Video, report *model.RunReport) (model.Summary, bool) {
	logger = logger.With(slog.String("video", string(video.ID)), slog.String("channel", string(video.ChannelID)))

	transcript, err := p.transcripts.Transcript(ctx, video.ID)
	if err != nil {
		report.SkippedNoTranscript++
		if errors.Is(err, fetch.ErrTranscriptUnavailable) {
			logger.Warn("no transcript available")
		} else {
			logger.Warn("transcript fetch failed", slog.String("error", err.Error()))
		}
		return model.Summary{}, false
	}

	text, err := p.summarizer.Summarize(ctx, video.ChannelID, transcript, p.cfg.SummaryMaxWords, p.cfg.SummaryMinWords)
	if err != nil {
		report.SkippedSummarizeError++
		logger.Error("failed to summarize", slog.String("error", err.Error()))
		return model.Summary{}, false
	}
	summary := model.Summary{
		Video:       video,
		Text:        text,
		GeneratedAt: p.now(),
	}

	result := p.deliver(ctx, summary)
	if !result.Delivered {
		report.NotificationsFailed++
		logger.Error("failed to deliver notification", slog.String("error", result.Error))
		return model.Summary{}, false
	}
	report.NotificationsSent++
	logger.Info("notification delivered")

	if err := p.store.Add(ctx, video.ID, summary.GeneratedAt); err != nil {
		// The message is out, so the id stays in the in-memory set for this
		// run. The next run may send a duplicate, never lose a video.
		logger.Error("failed to record processed video", slog.String("error", err.Error()))
	}

	return summary, true
}

func (p *Pipeline) deliver(ctx context.Context, summary model.Summary) model.NotificationResult {
	result := model.NotificationResult{VideoID: summary.Video.ID}
	if err := p.notifier.Deliver(ctx, notify.FormatVideoMessage(summary)); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Delivered = true

	return result
}

func (p *Pipeline) sendDigest(ctx context.Context, logger *slog.Logger, delivered []model.Summary) {
	entries := make([]string, 0, len(delivered))
	for _, summary := range delivered {
		entries = append(entries, fmt.Sprintf("%s: %s", summary.Video.Title, summary.Text))
	}

	text, err := p.summarizer.Digest(ctx, entries, p.cfg.SummaryMaxWords)
	if err != nil {
		logger.Error("failed to summarize digest", slog.String("error", err.Error()))
		return
	}
	if err := p.notifier.Deliver(ctx, notify.FormatDigestMessage(text)); err != nil {
		logger.Error("failed to deliver digest", slog.String("error", err.Error()))
		return
	}
	logger.Info("digest delivered", slog.Int("entries", len(entries)))
}

func (p *Pipeline) tooOld(video model.Video) bool {
	if p.cfg.MaxVideoAge == 0 || video.PublishedAt.IsZero() {
		return false
	}

	return video.PublishedAt.Before(p.now().Add(-p.cfg.MaxVideoAge))
}

// pause spaces out deliveries so the notifier's rate limit is respected.
func (p *Pipeline) pause(ctx context.Context) {
	if p.cfg.NotifyInterval == 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.NotifyInterval):
	}
}
