//go:build windows

package watching

import (
	"context"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
)

// readDirectoryChangesBufferSize is the size of the buffer passed to each
// ReadDirectoryChangesW call.
const readDirectoryChangesBufferSize = 64 * 1024

const readDirectoryChangesFilter = windows.FILE_NOTIFY_CHANGE_FILE_NAME |
	windows.FILE_NOTIFY_CHANGE_DIR_NAME |
	windows.FILE_NOTIFY_CHANGE_ATTRIBUTES |
	windows.FILE_NOTIFY_CHANGE_SIZE |
	windows.FILE_NOTIFY_CHANGE_LAST_WRITE |
	windows.FILE_NOTIFY_CHANGE_CREATION

// readDirectoryChangesBackend watches a root natively via
// ReadDirectoryChangesW, opened with the recursive-subtree flag so a single
// handle covers the whole tree.
type readDirectoryChangesBackend struct{}

func newNativeBackend() nativeBackend {
	return &readDirectoryChangesBackend{}
}

func (b *readDirectoryChangesBackend) run(ctx context.Context, root pathkey.PathKey, out chan<- event.RawEvent, errs chan<- error, statsOut *stats.Watcher) {
	rootPointer, err := windows.UTF16PtrFromString(root.String())
	if err != nil {
		b.fail(errs, err)
		return
	}

	handle, err := windows.CreateFile(
		rootPointer,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		b.fail(errs, err)
		return
	}
	defer windows.CloseHandle(handle)

	buffer := make([]byte, readDirectoryChangesBufferSize)
	overlapped := &windows.Overlapped{}
	waitEvent, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		b.fail(errs, err)
		return
	}
	defer windows.CloseHandle(waitEvent)
	overlapped.HEvent = waitEvent

	for {
		if ctx.Err() != nil {
			return
		}

		var bytesReturned uint32
		readErr := windows.ReadDirectoryChanges(handle, &buffer[0], uint32(len(buffer)), true, readDirectoryChangesFilter, &bytesReturned, overlapped, 0)
		if readErr != nil {
			b.fail(errs, readErr)
			return
		}

		waitResult, waitErr := windows.WaitForSingleObject(waitEvent, 250)
		if waitErr != nil {
			b.fail(errs, waitErr)
			return
		}
		if waitResult == uint32(windows.WAIT_TIMEOUT) {
			continue
		}

		if err := windows.GetOverlappedResult(handle, overlapped, &bytesReturned, false); err != nil {
			b.fail(errs, err)
			return
		}
		if bytesReturned == 0 {
			b.emit(out, statsOut, event.RawEvent{Path: root, Kind: event.Unknown, ObservedAt: time.Now()})
			continue
		}

		b.processRecords(buffer[:bytesReturned], root, out, statsOut)
	}
}

func (b *readDirectoryChangesBackend) processRecords(buffer []byte, root pathkey.PathKey, out chan<- event.RawEvent, statsOut *stats.Watcher) {
	offset := 0
	for {
		record := (*windows.FileNotifyInformation)(unsafe.Pointer(&buffer[offset]))
		name := windows.UTF16ToString((*[1 << 15]uint16)(unsafe.Pointer(&record.FileName))[: record.FileNameLength/2 : record.FileNameLength/2])

		path, joinErr := pathkey.Join(root, name)
		if joinErr == nil {
			b.emit(out, statsOut, event.RawEvent{Path: path, Kind: classifyAction(record.Action), ObservedAt: time.Now()})
		}

		if record.NextEntryOffset == 0 {
			break
		}
		offset += int(record.NextEntryOffset)
		if offset >= len(buffer) {
			break
		}
	}
}

func classifyAction(action uint32) event.ChangeKind {
	switch action {
	case windows.FILE_ACTION_ADDED:
		return event.Created
	case windows.FILE_ACTION_REMOVED:
		return event.Deleted
	case windows.FILE_ACTION_MODIFIED:
		return event.Modified
	case windows.FILE_ACTION_RENAMED_OLD_NAME:
		return event.RenamedFrom
	case windows.FILE_ACTION_RENAMED_NEW_NAME:
		return event.RenamedTo
	default:
		return event.Unknown
	}
}

func (b *readDirectoryChangesBackend) emit(out chan<- event.RawEvent, statsOut *stats.Watcher, raw event.RawEvent) {
	select {
	case out <- raw:
		if statsOut != nil {
			statsOut.IncEventsReceived()
		}
	default:
		if statsOut != nil {
			statsOut.IncEventsDropped()
		}
	}
}

func (b *readDirectoryChangesBackend) fail(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}
