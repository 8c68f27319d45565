// Package soundcloud provides a client and decoder for the collection
// endpoints of the SoundCloud v2 API.
//
// This package includes:
//   - An HTTP client that authenticates every request with an auth.Credential
//     and maps failures onto the pkg/errors taxonomy
//   - Typed records for likes, playlists and comments
//   - EntityDecoder, which validates a whole page or rejects it
//   - Helpers for building collection endpoints
//
// Example usage:
//
//	cred, err := auth.NewCredential(token, clientID)
//	client := soundcloud.NewClient(cred, 10*time.Second, log)
//
//	me, err := client.Me(ctx)
//	endpoint, _ := soundcloud.EndpointFor(soundcloud.KindLikes, me.ID)
//
//	raw, err := client.FetchPage(ctx, soundcloud.PageRequest{Endpoint: endpoint})
//	page, err := soundcloud.NewEntityDecoder().Decode(raw, soundcloud.KindLikes)
//	for page.HasNext() {
//	    raw, err = client.FetchPage(ctx, soundcloud.PageRequest{Cursor: page.NextCursor})
//	    ...
//	}
//
// Walking a collection by hand is rarely needed; pkg/crawler does it with
// rate limiting, retries and deduplication.
package soundcloud
