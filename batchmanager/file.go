package batchmanager

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/semaphore"

	"github.com/rudderlabs/rudder-eventcore/kvstore"
)

// FileManager is the file-backed Manager (spec §4.1 "File backend"): each
// closed batch is a file named after its BatchID under dir, an open batch is
// the same file name with tmpSuffix appended, and the counter is persisted
// through a kvstore.Store (conventionally kvstore.FileStore, this module's
// properties-file store).
type FileManager struct {
	sem          *semaphore.Weighted
	dir          string
	counterStore kvstore.Store
	counterKey   string
	platform     PlatformType
	maxBatch     int

	currentID     BatchID
	currentOpened bool
	hasCurrent    bool
}

// NewFileManager returns a Manager persisting batches as files under dir.
func NewFileManager(dir string, counterStore kvstore.Store, counterKey string, platform PlatformType, maxBatchSize int) (*FileManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileManager{
		sem:          semaphore.NewWeighted(1),
		dir:          dir,
		counterStore: counterStore,
		counterKey:   counterKey,
		platform:     platform,
		maxBatch:     maxBatchSize,
	}, nil
}

func (f *FileManager) lock()   { _ = f.sem.Acquire(context.Background(), 1) }
func (f *FileManager) unlock() { f.sem.Release(1) }

func (f *FileManager) tmpPath(id BatchID) string {
	return filepath.Join(f.dir, strconv.FormatInt(int64(id), 10)+tmpSuffix)
}

func (f *FileManager) closedPath(id BatchID) string {
	return filepath.Join(f.dir, strconv.FormatInt(int64(id), 10))
}

func (f *FileManager) nextID() BatchID {
	return BatchID(f.counterStore.ReadLong(f.counterKey, 0))
}

func (f *FileManager) advanceCounter(from BatchID) {
	_ = f.counterStore.WriteLong(f.counterKey, int64(from)+1)
}

// StoreEvent mirrors MemoryManager.StoreEvent but against the tmp file: the
// size check happens at the start of the call against whatever was left over
// from the previous append, not before the very first append into a fresh
// batch (spec §9 open question — the file and in-memory backends agree).
func (f *FileManager) StoreEvent(payload string) error {
	f.lock()
	defer f.unlock()

	if !f.hasCurrent {
		f.currentID = f.nextID()
		f.hasCurrent = true
		f.currentOpened = false
	} else if info, err := os.Stat(f.tmpPath(f.currentID)); err == nil && info.Size() > int64(f.maxBatch) {
		if err := f.rolloverLocked(); err != nil {
			return err
		}
		f.currentID = f.nextID()
		f.hasCurrent = true
		f.currentOpened = false
	}

	fh, err := os.OpenFile(f.tmpPath(f.currentID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()

	if !f.currentOpened {
		if _, err := fh.WriteString(OpenPrefix); err != nil {
			return err
		}
		f.currentOpened = true
	} else {
		if _, err := fh.WriteString(","); err != nil {
			return err
		}
	}
	_, err = fh.WriteString(payload)
	return err
}

func (f *FileManager) Rollover() error {
	f.lock()
	defer f.unlock()
	return f.rolloverLocked()
}

func (f *FileManager) rolloverLocked() error {
	if !f.hasCurrent {
		return nil
	}
	tmp := f.tmpPath(f.currentID)
	if _, err := os.Stat(tmp); err != nil {
		// Nothing was ever appended (e.g. CloseAndReset raced in): treat as
		// a no-op rather than finalising an empty batch.
		f.hasCurrent = false
		return nil
	}
	body, err := os.ReadFile(tmp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.closedPath(f.currentID), closeFrame(body), 0o644); err != nil {
		return err
	}
	if err := os.Remove(tmp); err != nil {
		return err
	}
	f.advanceCounter(f.currentID)
	f.hasCurrent = false
	return nil
}

func (f *FileManager) CloseAndReset() error {
	f.lock()
	defer f.unlock()
	if f.hasCurrent {
		_ = os.Remove(f.tmpPath(f.currentID))
		f.hasCurrent = false
	}
	return nil
}

// Read enumerates closed batch files. Server deployments sort numerically so
// that "10" sorts after "2"; Mobile deployments return raw directory order
// (spec §3, §9).
func (f *FileManager) Read() ([]BatchID, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []BatchID
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), tmpSuffix) {
			continue
		}
		n, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, BatchID(n))
	}
	if f.platform == Server {
		slices.SortFunc(ids, func(a, b BatchID) bool { return a < b })
	}
	return ids, nil
}

func (f *FileManager) ReadContent(id BatchID) ([]byte, bool, error) {
	body, err := os.ReadFile(f.closedPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return body, true, nil
}

func (f *FileManager) Remove(id BatchID) (bool, error) {
	f.lock()
	defer f.unlock()
	err := os.Remove(f.closedPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f *FileManager) Delete() error {
	f.lock()
	defer f.unlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			f.hasCurrent = false
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err != nil {
			return err
		}
	}
	f.hasCurrent = false
	return nil
}
