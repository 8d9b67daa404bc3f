package model

import (
	"fmt"
	"time"
)

type ChannelID string

type VideoID string

// Video is what a video source reports about a single upload. The pipeline
// treats it as read-only.
type Video struct {
	ID          VideoID
	ChannelID   ChannelID
	Title       string
	PublishedAt time.Time
}

// URL is the canonical watch link for the video.
func (v Video) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.ID)
}

type Summary struct {
	Video       Video
	Text        string
	GeneratedAt time.Time
}
