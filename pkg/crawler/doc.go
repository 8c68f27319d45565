// Package crawler turns a cursor-linked chain of page fetches into one lazy
// sequence of records.
//
// A Crawler moves through Init, Fetching and Decoding until a page without a
// next cursor ends it in Done, or an error ends it in Failed. Each request
// attempt waits on the rate limiter first; retryable failures are retried in
// place per the retry policy. Records whose id was already emitted are
// dropped, which absorbs page boundaries that shift while the collection is
// being walked.
//
// Usage:
//
//	c := crawler.New(soundcloud.KindLikes, endpoint, client, crawler.Options{
//	    Limiter: limiter,
//	    Policy:  retry.DefaultPolicy(),
//	})
//	for record, err := range c.Records(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	}
//
// The sequence is single use. Breaking out of the loop leaves the crawler in
// Failed with ErrAborted.
package crawler
