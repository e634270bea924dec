package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genFingerprint() gopter.Gen {
	return gen.SliceOfN(32, gen.IntRange(0, 255))
}

func toFingerprint(values []int) [32]byte {
	var out [32]byte
	for i, v := range values {
		out[i] = byte(v)
	}
	return out
}

// A Checkpoint saved under a given configuration fingerprint and loaded
// back immediately afterward, with the same fingerprint and a clock no
// further forward than MaxAge, decodes to an identical value.
func TestCheckpointRoundTrips(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("save then load returns what was saved", prop.ForAll(
		func(fingerprintValues []int, batchCount int, elapsedMinutes int) bool {
			fingerprint := toFingerprint(fingerprintValues)
			dir := t.TempDir()
			store, err := Open(filepath.Join(dir, "checkpoint.json"), nil)
			if err != nil {
				return false
			}

			started := time.Now().Add(-time.Duration(elapsedMinutes) * time.Minute)
			cp := NewSession(fingerprint, started)
			for i := 0; i < batchCount; i++ {
				cp.Batches = append(cp.Batches, BatchProgress{
					Label:        "batch",
					LastPathSeen: "/a/b",
					Completed:    i%2 == 0,
				})
			}
			cp.UpdatedAt = started

			if err := store.Save(cp); err != nil {
				return false
			}

			loaded, err := store.Load(fingerprint, started)
			if err != nil {
				return false
			}

			if loaded.SessionID != cp.SessionID {
				return false
			}
			if loaded.ConfigFingerprint != cp.ConfigFingerprint {
				return false
			}
			if len(loaded.Batches) != len(cp.Batches) {
				return false
			}
			for i := range loaded.Batches {
				if loaded.Batches[i] != cp.Batches[i] {
					return false
				}
			}
			return true
		},
		genFingerprint(),
		gen.IntRange(0, 20),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}

// A fingerprint mismatch always yields ErrCheckpointStale, regardless of
// how recently the checkpoint was written.
func TestCheckpointFingerprintMismatchAlwaysStale(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("mismatched fingerprint is always rejected as stale", prop.ForAll(
		func(aValues, bValues []int) bool {
			a, b := toFingerprint(aValues), toFingerprint(bValues)
			if a == b {
				return true
			}
			dir := t.TempDir()
			store, err := Open(filepath.Join(dir, "checkpoint.json"), nil)
			if err != nil {
				return false
			}

			now := time.Now()
			cp := NewSession(a, now)
			if err := store.Save(cp); err != nil {
				return false
			}

			_, err = store.Load(b, now)
			return err != nil
		},
		genFingerprint(),
		genFingerprint(),
	))

	properties.TestingRun(t)
}

// A checkpoint older than MaxAge is always rejected as stale even when its
// fingerprint still matches.
func TestCheckpointOlderThanMaxAgeIsStale(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("age past MaxAge is always rejected", prop.ForAll(
		func(fingerprintValues []int, extraMinutes int) bool {
			fingerprint := toFingerprint(fingerprintValues)
			dir := t.TempDir()
			store, err := Open(filepath.Join(dir, "checkpoint.json"), nil)
			if err != nil {
				return false
			}

			now := time.Now()
			cp := NewSession(fingerprint, now.Add(-MaxAge-time.Duration(extraMinutes)*time.Minute))
			cp.UpdatedAt = cp.StartedAt
			if err := store.Save(cp); err != nil {
				return false
			}

			_, err = store.Load(fingerprint, now)
			return err != nil
		},
		genFingerprint(),
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t)
}
