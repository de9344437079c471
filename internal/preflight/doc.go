// Package preflight provides readiness checks for the filesystem paths,
// remote gallery host, export bucket and queue database galleryd depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll on start and logs every failing check so a
//     misconfigured cookie or unwritable download directory shows up before
//     the first gallery fails.
//   - The CLI "galleryd status" command renders the results as a readiness
//     table.
//
// Checks never mutate state; a file:// export bucket that does not exist yet
// passes because the exporter creates it on open.
package preflight
