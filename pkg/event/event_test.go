package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
)

func TestMarshalJSONShape(t *testing.T) {
	observed := time.Unix(1700000000, 0)
	e := OutboundEvent{
		Path: pathkey.MustNew("/a/b.txt"),
		Kind: Modified,
		Attributes: &FileAttributes{
			SizeBytes:   1024,
			ModifiedAt:  observed,
			IsDirectory: false,
		},
		ContentExtracted: false,
		ObservedAt:       observed,
		Origin:           OriginWatcher,
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Equal(t, "/a/b.txt", decoded["path"])
	require.Equal(t, "b.txt", decoded["name"])
	require.Equal(t, ".txt", decoded["extension"])
	require.Equal(t, "/a", decoded["directory"])
	require.Equal(t, "modified", decoded["event_type"])
	require.Equal(t, "watcher", decoded["origin"])
	require.Equal(t, float64(1024), decoded["size"])
	require.Equal(t, false, decoded["is_directory"])
	require.NotContains(t, decoded, "old_path")
	require.NotContains(t, decoded, "content")
}

func TestMarshalJSONDeletedHasNoSize(t *testing.T) {
	// Scenario S2: a deleted event carries no size.
	e := OutboundEvent{
		Path:       pathkey.MustNew("/a/c.txt"),
		Kind:       Deleted,
		ObservedAt: time.Unix(0, 0),
		Origin:     OriginWatcher,
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "deleted", decoded["event_type"])
	require.NotContains(t, decoded, "size")
}

func TestMarshalJSONRenamePair(t *testing.T) {
	// Scenario S3: rename across roots produces two distinct wire events.
	oldPath := pathkey.MustNew("/root1/x")
	newPath := pathkey.MustNew("/root2/y")

	from := OutboundEvent{Path: oldPath, Kind: RenamedFrom, ObservedAt: time.Unix(0, 0), Origin: OriginWatcher}
	to := OutboundEvent{Path: newPath, Kind: RenamedTo, PreviousPath: &oldPath, ObservedAt: time.Unix(0, 0), Origin: OriginWatcher}

	fromData, err := json.Marshal(from)
	require.NoError(t, err)
	toData, err := json.Marshal(to)
	require.NoError(t, err)

	var fromDecoded, toDecoded map[string]interface{}
	require.NoError(t, json.Unmarshal(fromData, &fromDecoded))
	require.NoError(t, json.Unmarshal(toData, &toDecoded))

	require.Equal(t, "renamed_old", fromDecoded["event_type"])
	require.Equal(t, "/root1/x", fromDecoded["path"])
	require.NotContains(t, fromDecoded, "old_path")

	require.Equal(t, "renamed_new", toDecoded["event_type"])
	require.Equal(t, "/root2/y", toDecoded["path"])
	require.Equal(t, "/root1/x", toDecoded["old_path"])
}

func TestTruncateContent(t *testing.T) {
	require.Equal(t, "hello", TruncateContent("hello", 10))

	truncated := TruncateContent("hello world", 5)
	require.Equal(t, "hello ... [truncated]", truncated)
}

func TestTruncateContentMultibyte(t *testing.T) {
	s := "café résumé"
	truncated := TruncateContent(s, 4)
	require.Equal(t, "café"+" ... [truncated]", truncated)
}
