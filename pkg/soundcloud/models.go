package soundcloud

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the archivable collections
type Kind string

const (
	KindLikes     Kind = "likes"
	KindPlaylists Kind = "playlists"
	KindComments  Kind = "comments"
)

// AllKinds lists every supported collection in archive order
var AllKinds = []Kind{KindLikes, KindPlaylists, KindComments}

// ParseKind maps a collection name to its Kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindLikes, KindPlaylists, KindComments:
		return k, nil
	default:
		return "", fmt.Errorf("unknown collection kind %q", s)
	}
}

func (k Kind) String() string {
	return string(k)
}

// Record is one archived entry. The set of implementations is closed:
// *Like, *Playlist and *Comment.
type Record interface {
	RecordKind() Kind
	RecordID() int64
	RecordTime() time.Time
	isRecord()
}

// User is the public profile embedded in tracks, playlists and comments
type User struct {
	ID           int64  `json:"id" yaml:"id"`
	Username     string `json:"username,omitempty" yaml:"username,omitempty"`
	FullName     string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Permalink    string `json:"permalink,omitempty" yaml:"permalink,omitempty"`
	PermalinkURL string `json:"permalink_url,omitempty" yaml:"permalink_url,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
	City         string `json:"city,omitempty" yaml:"city,omitempty"`
	CountryCode  string `json:"country_code,omitempty" yaml:"country_code,omitempty"`
	Verified     bool   `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// Track holds the metadata kept for a liked or listed track
type Track struct {
	ID            int64     `json:"id" yaml:"id"`
	Title         string    `json:"title,omitempty" yaml:"title,omitempty"`
	Permalink     string    `json:"permalink,omitempty" yaml:"permalink,omitempty"`
	PermalinkURL  string    `json:"permalink_url,omitempty" yaml:"permalink_url,omitempty"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	Genre         string    `json:"genre,omitempty" yaml:"genre,omitempty"`
	TagList       string    `json:"tag_list,omitempty" yaml:"tag_list,omitempty"`
	ArtworkURL    string    `json:"artwork_url,omitempty" yaml:"artwork_url,omitempty"`
	Duration      int64     `json:"duration,omitempty" yaml:"duration,omitempty"`
	PlaybackCount int64     `json:"playback_count,omitempty" yaml:"playback_count,omitempty"`
	LikesCount    int64     `json:"likes_count,omitempty" yaml:"likes_count,omitempty"`
	CommentCount  int64     `json:"comment_count,omitempty" yaml:"comment_count,omitempty"`
	Downloadable  bool      `json:"downloadable,omitempty" yaml:"downloadable,omitempty"`
	Streamable    bool      `json:"streamable,omitempty" yaml:"streamable,omitempty"`
	License       string    `json:"license,omitempty" yaml:"license,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	User          *User     `json:"user,omitempty" yaml:"user,omitempty"`
	Media         *Media    `json:"media,omitempty" yaml:"media,omitempty"`
}

// Like is a track the user liked. Its id is the liked track's id, which is
// what keeps likes unique within a collection.
type Like struct {
	ID        int64     `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Track     Track     `json:"track" yaml:"track"`
}

func (l *Like) RecordKind() Kind      { return KindLikes }
func (l *Like) RecordID() int64       { return l.ID }
func (l *Like) RecordTime() time.Time { return l.CreatedAt }
func (l *Like) isRecord()             {}

// Playlist is a set the user created or liked
type Playlist struct {
	ID           int64     `json:"id" yaml:"id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	Title        string    `json:"title" yaml:"title"`
	Permalink    string    `json:"permalink,omitempty" yaml:"permalink,omitempty"`
	PermalinkURL string    `json:"permalink_url,omitempty" yaml:"permalink_url,omitempty"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	Sharing      string    `json:"sharing,omitempty" yaml:"sharing,omitempty"`
	TrackCount   int       `json:"track_count" yaml:"track_count"`
	Duration     int64     `json:"duration,omitempty" yaml:"duration,omitempty"`
	IsAlbum      bool      `json:"is_album,omitempty" yaml:"is_album,omitempty"`
	User         *User     `json:"user,omitempty" yaml:"user,omitempty"`
	Tracks       []Track   `json:"tracks,omitempty" yaml:"tracks,omitempty"`
}

func (p *Playlist) RecordKind() Kind      { return KindPlaylists }
func (p *Playlist) RecordID() int64       { return p.ID }
func (p *Playlist) RecordTime() time.Time { return p.CreatedAt }
func (p *Playlist) isRecord()             {}

// Comment is a timed comment the user left on a track
type Comment struct {
	ID        int64     `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Body      string    `json:"body" yaml:"body"`
	// Timestamp is the position in the track, in milliseconds
	Timestamp int64  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	TrackID   int64  `json:"track_id,omitempty" yaml:"track_id,omitempty"`
	Track     *Track `json:"track,omitempty" yaml:"track,omitempty"`
}

func (c *Comment) RecordKind() Kind      { return KindComments }
func (c *Comment) RecordID() int64       { return c.ID }
func (c *Comment) RecordTime() time.Time { return c.CreatedAt }
func (c *Comment) isRecord()             {}

// PageRequest describes one fetch. Cursor is empty only for the first page
// of a crawl and is otherwise the server's next_href, used verbatim.
type PageRequest struct {
	Endpoint string
	Cursor   string
	PageSize int
}

// PageResponse is one decoded page
type PageResponse struct {
	Items      []Record
	NextCursor string
}

// HasNext reports whether the collection continues past this page
func (p *PageResponse) HasNext() bool {
	return p.NextCursor != ""
}

// Me is the authenticated user's profile
type Me struct {
	User
	TrackCount     int `json:"track_count,omitempty"`
	PlaylistCount  int `json:"playlist_count,omitempty"`
	LikesCount     int `json:"public_favorites_count,omitempty"`
	FollowersCount int `json:"followers_count,omitempty"`
}
