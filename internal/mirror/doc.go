// Package mirror keeps a local, versioned copy of a remote data repository
// that is published as a zipped branch snapshot.
//
// # Security Model
//
// Archives come from the network and are treated as untrusted input:
//   - Every entry path is checked for containment before any byte is written
//   - Entries that escape the target directory abort the whole extraction
//   - Symlink entries are never materialized
//   - Extraction happens in a staging directory; the live snapshot is only
//     replaced after the new tree is complete
//
// # Sync Strategy
//
//  1. Ask the RevisionSource for the tip revision of the tracked branch
//  2. Compare it with the revision recorded in the marker file
//  3. If they differ: download, verify (optional), extract into staging,
//     swap into place, then write the marker
//
// An unreachable remote is a soft failure: TrySync reports
// StatusUnavailable and returns no error.
//
// # Usage
//
//	syncer, err := mirror.NewSyncer(mirror.Config{
//	    Locator: mirror.Locator{Owner: "acme", Name: "data", Branch: "main"},
//	    DataDir: "/home/user/.local/share/repomirror",
//	})
//	if err != nil {
//	    return err
//	}
//
//	result, err := syncer.TrySync(ctx)
//
// # Architecture
//
// The package is organized into several components:
//   - Syncer: orchestration, single-flight and staged swap
//   - GitHubSource: revision discovery through the commits API
//   - Fetcher: archive download with retry
//   - Extractor: zip extraction with containment checks
//   - MarkerStore: persisted revision marker
//   - Verifier: optional OpenPGP signature verification
package mirror
