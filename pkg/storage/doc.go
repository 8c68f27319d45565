// Package storage writes finished snapshots to disk.
//
// The storage package handles:
//   - Creating and managing the output directory
//   - Saving snapshots as JSON, YAML or NDJSON with atomic writes
//   - Keeping earlier snapshots unless overwrite is requested
//   - Reading JSON snapshots back with typed records
//
// Only completed snapshots reach this package, so a failed crawl never
// leaves a file behind.
//
// Usage:
//
//	manager, err := storage.NewManager("./archive", false)
//	if err != nil {
//	    return err
//	}
//
//	path, err := manager.SaveSnapshot(snap, storage.FormatJSON)
//	if err != nil {
//	    return err
//	}
//
//	restored, err := manager.LoadSnapshot(soundcloud.KindLikes)
package storage
