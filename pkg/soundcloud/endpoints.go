package soundcloud

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL of the v2 API
	BaseURL = "https://api-v2.soundcloud.com"

	// MeEndpoint returns the authenticated user
	MeEndpoint = "/me"

	// LikesEndpoint lists a user's liked tracks
	LikesEndpoint = "/users/%d/track_likes"

	// PlaylistsEndpoint lists a user's playlists
	PlaylistsEndpoint = "/users/%d/playlists"

	// CommentsEndpoint lists a user's track comments
	CommentsEndpoint = "/users/%d/comments"

	// PlaylistEndpoint returns one playlist with its full track list
	PlaylistEndpoint = "/playlists/%d"

	// DefaultPageSize is the number of records requested per page
	DefaultPageSize = 200

	// MaxPageSize is the largest page the API serves
	MaxPageSize = 500
)

// EndpointFor returns the collection path of kind for userID
func EndpointFor(kind Kind, userID int64) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	switch kind {
	case KindLikes:
		return fmt.Sprintf(LikesEndpoint, userID), nil
	case KindPlaylists:
		return fmt.Sprintf(PlaylistsEndpoint, userID), nil
	case KindComments:
		return fmt.Sprintf(CommentsEndpoint, userID), nil
	default:
		return "", fmt.Errorf("unknown collection kind %q", kind)
	}
}

// ClampPageSize keeps a page size within what the API accepts
func ClampPageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}

// firstPageURL builds the URL of a crawl's first page. Later pages follow
// the server's next_href instead.
func firstPageURL(baseURL, endpoint string, pageSize int) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", err
	}
	params := u.Query()
	params.Set("limit", fmt.Sprintf("%d", ClampPageSize(pageSize)))
	params.Set("linked_partitioning", "1")
	u.RawQuery = params.Encode()
	return u.String(), nil
}
