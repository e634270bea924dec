// Package filesystem provides the small set of low-level filesystem
// utilities the checkpoint store needs: atomic file writes and the shared
// temporary-file naming convention. Cross-platform advisory locking lives in
// the locking subpackage.
package filesystem
