// Package gallery models a remote gallery and its on-disk folder.
//
// Metadata carries the page count, titles and per-page extension hints
// resolved from the remote API. Folder addresses page artifacts as
// <download_dir>/<id>/<NNN>.<ext>; a page is present only when its file is
// non-empty, and writes are atomic. The sidecar helpers persist metadata next
// to the pages as .gallery.json and migrate the legacy .nomedia layout.
package gallery
