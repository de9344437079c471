// Package pagefetch serves page images on demand, outside the download
// worker.
//
// Requests for the same gallery run one at a time through a per-gallery
// Queue, in arrival order, except that an extension retry jumps directly
// behind the running task. Each gallery's queue lives only while a caller
// holds a Handle or tasks remain. Loader ties the queue to the remote
// fetcher and the renderer, reading pages from the local gallery folder when
// the downloader already stored them and from the page cache when an earlier
// view fetched them.
package pagefetch
