// Package downloads holds the in-memory download queue and the per-gallery
// downloader state machine.
//
// Queue keeps one Downloader per gallery id in insertion order and exposes two
// views: FetchForData hands out entries that still need metadata, Fetch
// returns the oldest entry ready for content. MergeInto and Restore are the
// named rules for re-adding an id and for rebuilding the queue from the store
// after a restart.
//
// A Downloader resolves metadata once (DownloadGalleryData) and then fetches
// pages one step at a time (Download). It is the only writer of its gallery
// folder and store row. Transient failures park the entry at paused so the
// scheduler's backoff governs the retry; fatal and local IO failures mark it
// failed.
package downloads
