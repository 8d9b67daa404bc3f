package fetch

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/youtube/v3"

	"tubedigest/model"
)

// Youtube lists recent uploads of a channel through the YouTube Data API.
type Youtube struct {
	Client *youtube.Service
}

func NewYoutube(client *youtube.Service) *Youtube {
	return &Youtube{Client: client}
}

func (y *Youtube) RecentVideos(ctx context.Context, channelID model.ChannelID, limit int) ([]model.Video, error) {
	channelResp, err := y.Client.Channels.
		List([]string{"contentDetails"}).
		Id(string(channelID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel %s: %w", channelID, err)
	}
	if len(channelResp.Items) == 0 {
		return nil, fmt.Errorf("channel %s not found", channelID)
	}
	uploads := channelResp.Items[0].ContentDetails.RelatedPlaylists.Uploads

	playlistResp, err := y.Client.PlaylistItems.
		List([]string{"snippet", "contentDetails"}).
		PlaylistId(uploads).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch uploads of channel %s: %w", channelID, err)
	}

	// playlistItems come back newest first, the API gives no other order
	return playlistVideos(playlistResp.Items, channelID), nil
}

func playlistVideos(items []*youtube.PlaylistItem, channelID model.ChannelID) []model.Video {
	videos := make([]model.Video, 0, len(items))
	for _, item := range items {
		if item.Snippet == nil || item.ContentDetails == nil {
			continue
		}
		publishedAt := item.ContentDetails.VideoPublishedAt
		if publishedAt == "" {
			publishedAt = item.Snippet.PublishedAt
		}
		videos = append(videos, model.Video{
			ID:          model.VideoID(item.ContentDetails.VideoId),
			ChannelID:   channelID,
			Title:       item.Snippet.Title,
			PublishedAt: parseTimestamp(publishedAt),
		})
	}

	return videos
}

func parseTimestamp(value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}

	return ts
}
