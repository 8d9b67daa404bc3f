package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"tubedigest/fetch"
	"tubedigest/model"
	"tubedigest/notify"
	"tubedigest/pipeline"
	"tubedigest/storage"
	"tubedigest/summarize"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr))
	godotenv.Load()

	cfg, err := parseConfig(os.LookupEnv)
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var store interface {
		pipeline.ProcessedStore
		Close() error
	}
	switch cfg.stateBackend {
	case "postgres":
		postgres, err := storage.NewPostgres(cfg.postgres)
		if err != nil {
			logger.Error("unable to connect to postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = postgres
	default:
		sqlite, err := storage.NewSqlite(cfg.stateFile)
		if err != nil {
			logger.Error("unable to open state file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = sqlite
	}
	defer store.Close()

	var lister pipeline.VideoLister
	switch cfg.videoSource {
	case "miniflux":
		lister = fetch.NewMiniflux(fetch.MinifluxInfo{
			Endpoint: cfg.minifluxEndpoint,
			ApiKey:   cfg.minifluxApiKey,
		})
	default:
		ytClient, err := youtube.NewService(ctx, option.WithAPIKey(cfg.youtubeApiKey))
		if err != nil {
			logger.Error("unable to create youtube service", slog.String("error", err.Error()))
			os.Exit(1)
		}
		lister = fetch.NewYoutube(ytClient)
	}

	prompts := summarize.NewPromptRegistry()
	if cfg.promptsFile != "" {
		prompts, err = summarize.LoadPrompts(cfg.promptsFile)
		if err != nil {
			logger.Error("unable to load prompts", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	summarizer := summarize.NewOpenAI(cfg.openAIKey, cfg.openAIModel, prompts)

	notifier, err := notify.NewTelegram(cfg.telegramToken, cfg.telegramChatID)
	if err != nil {
		logger.Error("unable to create telegram bot", slog.String("error", err.Error()))
		os.Exit(1)
	}

	transcripts := fetch.NewTranscripts(cfg.transcriptLangs)
	p := pipeline.NewPipeline(cfg.pipeline, lister, transcripts, summarizer, notifier, store, logger)
	report := p.Run(ctx)

	logger.Info("report",
		slog.Int("videos_seen", report.VideosSeen),
		slog.Int("videos_skipped_no_transcript", report.SkippedNoTranscript),
		slog.Int("videos_skipped_summarize_error", report.SkippedSummarizeError),
		slog.Int("notifications_sent", report.NotificationsSent),
		slog.Int("notifications_failed", report.NotificationsFailed))
}

type config struct {
	pipeline pipeline.Config

	videoSource      string
	youtubeApiKey    string
	minifluxEndpoint string
	minifluxApiKey   string
	transcriptLangs  []string

	openAIKey   string
	openAIModel string
	promptsFile string

	telegramToken  string
	telegramChatID int64

	stateBackend string
	stateFile    string
	postgres     storage.PostgresInfo
}

func parseConfig(lookup func(string) (string, bool)) (config, error) {
	getParam := func(param, def string) string {
		if val, ok := lookup(param); ok {
			return val
		}
		return def
	}

	cfg := config{
		videoSource:      getParam("VIDEO_SOURCE", "youtube"),
		youtubeApiKey:    getParam("YOUTUBE_API_KEY", ""),
		minifluxEndpoint: getParam("MINIFLUX_ENDPOINT", ""),
		minifluxApiKey:   getParam("MINIFLUX_APIKEY", ""),
		transcriptLangs:  splitList(getParam("TRANSCRIPT_LANGS", "en")),
		openAIKey:        getParam("OPENAI_API_KEY", ""),
		openAIModel:      getParam("OPENAI_MODEL", "gpt-4o-mini"),
		promptsFile:      getParam("PROMPTS_FILE", ""),
		telegramToken:    getParam("TELEGRAM_BOT_TOKEN", ""),
		stateBackend:     getParam("STATE_BACKEND", "sqlite"),
		stateFile:        getParam("STATE_FILE", "tubedigest.db"),
		postgres: storage.PostgresInfo{
			Host:     getParam("POSTGRES_HOST", "localhost"),
			Port:     getParam("POSTGRES_PORT", "5432"),
			User:     getParam("POSTGRES_USER", "tubedigest"),
			Password: getParam("POSTGRES_PASSWORD", "tubedigest"),
			Database: getParam("POSTGRES_DB", "tubedigest"),
		},
	}

	for _, channel := range splitList(getParam("CHANNELS", "")) {
		cfg.pipeline.Channels = append(cfg.pipeline.Channels, model.ChannelID(channel))
	}
	if len(cfg.pipeline.Channels) == 0 {
		return config{}, fmt.Errorf("CHANNELS is required")
	}

	var err error
	if cfg.pipeline.MaxPerChannel, err = parsePositiveInt(getParam("MAX_VIDEOS_PER_CHANNEL", "3")); err != nil {
		return config{}, fmt.Errorf("invalid MAX_VIDEOS_PER_CHANNEL: %w", err)
	}
	if cfg.pipeline.SummaryMaxWords, err = parsePositiveInt(getParam("SUMMARY_MAX_WORDS", "500")); err != nil {
		return config{}, fmt.Errorf("invalid SUMMARY_MAX_WORDS: %w", err)
	}
	if cfg.pipeline.SummaryMinWords, err = strconv.Atoi(getParam("SUMMARY_MIN_WORDS", "0")); err != nil {
		return config{}, fmt.Errorf("invalid SUMMARY_MIN_WORDS: %w", err)
	}
	if cfg.pipeline.MaxVideoAge, err = time.ParseDuration(getParam("MAX_VIDEO_AGE", "48h")); err != nil {
		return config{}, fmt.Errorf("invalid MAX_VIDEO_AGE: %w", err)
	}
	if cfg.pipeline.NotifyInterval, err = time.ParseDuration(getParam("NOTIFY_INTERVAL", "10s")); err != nil {
		return config{}, fmt.Errorf("invalid NOTIFY_INTERVAL: %w", err)
	}
	if cfg.pipeline.Digest, err = strconv.ParseBool(getParam("DIGEST", "false")); err != nil {
		return config{}, fmt.Errorf("invalid DIGEST: %w", err)
	}

	switch cfg.videoSource {
	case "youtube":
		if cfg.youtubeApiKey == "" {
			return config{}, fmt.Errorf("YOUTUBE_API_KEY is required")
		}
	case "miniflux":
		if cfg.minifluxEndpoint == "" || cfg.minifluxApiKey == "" {
			return config{}, fmt.Errorf("MINIFLUX_ENDPOINT and MINIFLUX_APIKEY are required")
		}
	default:
		return config{}, fmt.Errorf("unknown VIDEO_SOURCE: %s", cfg.videoSource)
	}

	if cfg.openAIKey == "" {
		return config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.telegramToken == "" {
		return config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.telegramChatID, err = strconv.ParseInt(getParam("TELEGRAM_CHAT_ID", ""), 10, 64); err != nil {
		return config{}, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	if cfg.stateBackend != "sqlite" && cfg.stateBackend != "postgres" {
		return config{}, fmt.Errorf("unknown STATE_BACKEND: %s", cfg.stateBackend)
	}

	return cfg, nil
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%d is not positive", n)
	}

	return n, nil
}

func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
