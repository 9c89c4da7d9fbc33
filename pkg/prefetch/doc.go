// Package prefetch warms the media cache for a batch of resources, such as
// the tracks of a playback folder, using a bounded worker pool.
//
// Example usage:
//
//	batch := prefetch.NewBatchPrefetcher(audioController, prefetch.DefaultConfig())
//	summary := batch.PrefetchAll(ctx, []audiocache.PrefetchRequest{
//		{URL: "https://media.example.com/book/01.mp3", FolderPosition: &one},
//		{URL: "https://media.example.com/book/02.mp3", FolderPosition: &two},
//	})
//
// The batch prefetcher:
//   - Feeds requests to the workers in submission order
//   - Spawns a worker pool (default 4 workers)
//   - Bounds every prefetch with a per-item timeout
//   - Tallies outcomes from the status events each prefetch emits
//
// Folder positions are passed through for reporting only; they do not
// change the order in which work is started.
package prefetch
