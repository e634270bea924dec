package indexscan

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/afero"

	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
)

// Restarting a walk from the LastPathSeen of a prior, incomplete scan
// visits exactly the paths a full walk would have visited after that
// point, in the same order, and none before it.
func TestResumedWalkMatchesTailOfFullWalk(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("resuming after path i yields exactly the paths after i in a full walk", prop.ForAll(
		func(fileCount int, resumeIndex int) bool {
			fs := afero.NewMemMapFs()
			if err := fs.MkdirAll("/root", 0o755); err != nil {
				return false
			}
			for i := 0; i < fileCount; i++ {
				name := fmt.Sprintf("/root/file-%04d.txt", i)
				if err := afero.WriteFile(fs, name, []byte("x"), 0o644); err != nil {
					return false
				}
			}

			root := pathkey.MustNew("/root")

			full := &recordingScanSink{}
			p := New(0, nil, WithFilesystem(fs))
			if err := p.RecursiveWalk(context.Background(), root, "", full); err != nil {
				return false
			}
			// The walk also reports the root directory itself.
			if len(full.scanned) != fileCount+1 {
				return false
			}

			if fileCount == 0 {
				return true
			}
			idx := resumeIndex % fileCount
			resumeAfter := full.scanned[idx].Path.String()

			resumed := &recordingScanSink{}
			p2 := New(0, nil, WithFilesystem(fs))
			if err := p2.RecursiveWalk(context.Background(), root, resumeAfter, resumed); err != nil {
				return false
			}

			wantTail := full.scanned[idx+1:]
			if len(resumed.scanned) != len(wantTail) {
				return false
			}
			for i := range wantTail {
				if resumed.scanned[i].Path != wantTail[i].Path {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 30),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
