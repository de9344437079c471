// Package textutil normalizes gallery titles and free text.
//
// SanitizeFileName turns remote titles into safe archive names. FoldKey and
// ContainsFold back the case and width insensitive log search.
package textutil
