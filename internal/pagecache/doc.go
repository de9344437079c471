// Package pagecache keeps pages that were fetched for viewing before the
// downloader stored them.
//
// Entries live under <state_dir>/pagecache/<gallery id>/<page>.<ext>, outside
// the gallery folders the downloader owns. A read refreshes the entry's
// modification time and every write prunes the oldest entries until the
// cache fits page_cache_mb and the filesystem keeps at least a fifth of its
// space free. A nil *Cache is a valid, always-missing cache.
package pagecache
