package soundcloud

import (
	"encoding/json"
	"fmt"
	"time"

	errs "zester/pkg/errors"
)

// Decoder turns one raw page payload into typed records
type Decoder interface {
	Decode(raw []byte, kind Kind) (*PageResponse, error)
}

// EntityDecoder decodes collection pages of the v2 API. A record that does
// not match the schema of its kind fails the whole page.
type EntityDecoder struct{}

// NewEntityDecoder creates a decoder
func NewEntityDecoder() *EntityDecoder {
	return &EntityDecoder{}
}

// timeLayouts are the timestamp formats the API has been seen to return
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006/01/02 15:04:05 -0700",
}

type envelope struct {
	Collection *[]json.RawMessage `json:"collection"`
	NextHref   *string            `json:"next_href"`
}

type rawUser struct {
	ID           *int64  `json:"id"`
	Username     string  `json:"username"`
	FullName     string  `json:"full_name"`
	Permalink    string  `json:"permalink"`
	PermalinkURL string  `json:"permalink_url"`
	AvatarURL    string  `json:"avatar_url"`
	City         *string `json:"city"`
	CountryCode  *string `json:"country_code"`
	Verified     bool    `json:"verified"`
}

type rawTrack struct {
	ID            *int64   `json:"id"`
	Title         string   `json:"title"`
	Permalink     string   `json:"permalink"`
	PermalinkURL  string   `json:"permalink_url"`
	Description   *string  `json:"description"`
	Genre         *string  `json:"genre"`
	TagList       string   `json:"tag_list"`
	ArtworkURL    *string  `json:"artwork_url"`
	Duration      int64    `json:"duration"`
	PlaybackCount *int64   `json:"playback_count"`
	LikesCount    *int64   `json:"likes_count"`
	CommentCount  *int64   `json:"comment_count"`
	Downloadable  bool     `json:"downloadable"`
	Streamable    bool     `json:"streamable"`
	License       string   `json:"license"`
	CreatedAt     *string  `json:"created_at"`
	User          *rawUser `json:"user"`
	Media         *Media   `json:"media"`
}

type rawLike struct {
	CreatedAt *string   `json:"created_at"`
	Track     *rawTrack `json:"track"`
}

type rawPlaylist struct {
	ID           *int64     `json:"id"`
	CreatedAt    *string    `json:"created_at"`
	Title        *string    `json:"title"`
	Permalink    string     `json:"permalink"`
	PermalinkURL string     `json:"permalink_url"`
	Description  *string    `json:"description"`
	Sharing      string     `json:"sharing"`
	TrackCount   int        `json:"track_count"`
	Duration     int64      `json:"duration"`
	IsAlbum      bool       `json:"is_album"`
	User         *rawUser   `json:"user"`
	Tracks       []rawTrack `json:"tracks"`
}

type rawComment struct {
	ID        *int64    `json:"id"`
	CreatedAt *string   `json:"created_at"`
	Body      *string   `json:"body"`
	Timestamp *int64    `json:"timestamp"`
	TrackID   *int64    `json:"track_id"`
	Track     *rawTrack `json:"track"`
}

// Decode parses raw as a page of kind. A missing collection array, an item
// that is not an object of the expected shape or an item lacking a required
// field is reported as a decode error naming the item's index.
func (d *EntityDecoder) Decode(raw []byte, kind Kind) (*PageResponse, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.NewDecodeError(fmt.Sprintf("%s page is not a valid envelope", kind), err)
	}
	if env.Collection == nil {
		return nil, errs.NewDecodeError(fmt.Sprintf("%s page has no collection", kind), nil)
	}

	items := *env.Collection
	page := &PageResponse{Items: make([]Record, 0, len(items))}
	if env.NextHref != nil {
		page.NextCursor = *env.NextHref
	}

	for i, item := range items {
		record, err := decodeRecord(item, kind)
		if err != nil {
			return nil, errs.NewDecodeError(fmt.Sprintf("%s item %d", kind, i), err)
		}
		page.Items = append(page.Items, record)
	}
	return page, nil
}

func decodeRecord(item json.RawMessage, kind Kind) (Record, error) {
	switch kind {
	case KindLikes:
		return decodeLike(item)
	case KindPlaylists:
		return decodePlaylist(item)
	case KindComments:
		return decodeComment(item)
	default:
		return nil, fmt.Errorf("unknown collection kind %q", kind)
	}
}

func decodeLike(item json.RawMessage) (*Like, error) {
	var raw rawLike
	if err := json.Unmarshal(item, &raw); err != nil {
		return nil, err
	}
	if raw.Track == nil {
		return nil, missing("track")
	}
	track, err := raw.Track.toTrack()
	if err != nil {
		return nil, fmt.Errorf("track: %w", err)
	}
	createdAt, err := requiredTime(raw.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &Like{ID: track.ID, CreatedAt: createdAt, Track: *track}, nil
}

func decodePlaylist(item json.RawMessage) (*Playlist, error) {
	var raw rawPlaylist
	if err := json.Unmarshal(item, &raw); err != nil {
		return nil, err
	}
	if raw.ID == nil {
		return nil, missing("id")
	}
	if raw.Title == nil {
		return nil, missing("title")
	}
	createdAt, err := requiredTime(raw.CreatedAt)
	if err != nil {
		return nil, err
	}

	playlist := &Playlist{
		ID:           *raw.ID,
		CreatedAt:    createdAt,
		Title:        *raw.Title,
		Permalink:    raw.Permalink,
		PermalinkURL: raw.PermalinkURL,
		Description:  deref(raw.Description),
		Sharing:      raw.Sharing,
		TrackCount:   raw.TrackCount,
		Duration:     raw.Duration,
		IsAlbum:      raw.IsAlbum,
		User:         raw.User.toUser(),
	}
	for i := range raw.Tracks {
		track, err := raw.Tracks[i].toTrack()
		if err != nil {
			return nil, fmt.Errorf("tracks[%d]: %w", i, err)
		}
		playlist.Tracks = append(playlist.Tracks, *track)
	}
	return playlist, nil
}

func decodeComment(item json.RawMessage) (*Comment, error) {
	var raw rawComment
	if err := json.Unmarshal(item, &raw); err != nil {
		return nil, err
	}
	if raw.ID == nil {
		return nil, missing("id")
	}
	if raw.Body == nil {
		return nil, missing("body")
	}
	createdAt, err := requiredTime(raw.CreatedAt)
	if err != nil {
		return nil, err
	}

	comment := &Comment{
		ID:        *raw.ID,
		CreatedAt: createdAt,
		Body:      *raw.Body,
	}
	if raw.Timestamp != nil {
		comment.Timestamp = *raw.Timestamp
	}
	if raw.Track != nil {
		track, err := raw.Track.toTrack()
		if err != nil {
			return nil, fmt.Errorf("track: %w", err)
		}
		comment.Track = track
		comment.TrackID = track.ID
	}
	if raw.TrackID != nil {
		comment.TrackID = *raw.TrackID
	}
	return comment, nil
}

func (t *rawTrack) toTrack() (*Track, error) {
	if t.ID == nil {
		return nil, missing("id")
	}
	track := &Track{
		ID:            *t.ID,
		Title:         t.Title,
		Permalink:     t.Permalink,
		PermalinkURL:  t.PermalinkURL,
		Description:   deref(t.Description),
		Genre:         deref(t.Genre),
		TagList:       t.TagList,
		ArtworkURL:    deref(t.ArtworkURL),
		Duration:      t.Duration,
		PlaybackCount: derefInt(t.PlaybackCount),
		LikesCount:    derefInt(t.LikesCount),
		CommentCount:  derefInt(t.CommentCount),
		Downloadable:  t.Downloadable,
		Streamable:    t.Streamable,
		License:       t.License,
		User:          t.User.toUser(),
		Media:         t.Media,
	}
	if t.CreatedAt != nil {
		createdAt, err := parseTime(*t.CreatedAt)
		if err != nil {
			return nil, err
		}
		track.CreatedAt = createdAt
	}
	return track, nil
}

func (u *rawUser) toUser() *User {
	if u == nil || u.ID == nil {
		return nil
	}
	return &User{
		ID:           *u.ID,
		Username:     u.Username,
		FullName:     u.FullName,
		Permalink:    u.Permalink,
		PermalinkURL: u.PermalinkURL,
		AvatarURL:    u.AvatarURL,
		City:         deref(u.City),
		CountryCode:  deref(u.CountryCode),
		Verified:     u.Verified,
	}
}

func requiredTime(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, missing("created_at")
	}
	return parseTime(*s)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

func missing(field string) error {
	return fmt.Errorf("missing required field %q", field)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

// DecodePlaylist parses the full representation of a single playlist, as
// served by the playlist endpoint
func DecodePlaylist(raw []byte) (*Playlist, error) {
	playlist, err := decodePlaylist(raw)
	if err != nil {
		return nil, errs.NewDecodeError("playlist", err)
	}
	return playlist, nil
}
