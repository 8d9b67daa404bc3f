package fetch

import (
	"context"
	"strings"

	"miniflux.app/client"

	"tubedigest/model"
)

const (
	feedURLPrefix  = "https://www.youtube.com/feeds/videos.xml?channel_id="
	watchURLPrefix = "https://www.youtube.com/watch?v="
)

type MinifluxInfo struct {
	Endpoint string
	ApiKey   string
}

// Miniflux lists videos from a miniflux instance that is subscribed to the
// YouTube RSS feeds of the monitored channels. It is an alternative to the
// Data API lister for setups that already run miniflux; entries are left
// unread, the processed set is the only dedup boundary.
type Miniflux struct {
	client *client.Client
}

func NewMiniflux(mflInfo MinifluxInfo) *Miniflux {
	return &Miniflux{
		client: client.New(mflInfo.Endpoint, mflInfo.ApiKey),
	}
}

func (m *Miniflux) RecentVideos(_ context.Context, channelID model.ChannelID, limit int) ([]model.Video, error) {
	result, err := m.client.Entries(&client.Filter{
		Status:    "unread",
		Order:     "published_at",
		Direction: "desc",
	})
	if err != nil {
		return nil, err
	}

	return entryVideos(result.Entries, channelID, limit), nil
}

func entryVideos(entries client.Entries, channelID model.ChannelID, limit int) []model.Video {
	videos := make([]model.Video, 0, limit)
	for _, entry := range entries {
		if entry.Feed == nil {
			continue
		}
		if strings.TrimPrefix(entry.Feed.FeedURL, feedURLPrefix) != string(channelID) {
			continue
		}
		videos = append(videos, model.Video{
			ID:          model.VideoID(strings.TrimPrefix(entry.URL, watchURLPrefix)),
			ChannelID:   channelID,
			Title:       entry.Title,
			PublishedAt: entry.Date,
		})
		if len(videos) == limit {
			break
		}
	}

	return videos
}
