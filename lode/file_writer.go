package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// ErrInvalidFilename is returned by PutFile for names that would escape the
// build's files/ prefix.
var ErrInvalidFilename = errors.New("invalid sidecar filename")

// FileWriter writes sidecar files next to a build's records, such as the
// raw create-build response.
type FileWriter interface {
	// PutFile writes a file to the build's Hive-partitioned files/ prefix.
	// The filename must not contain path separators or "..".
	PutFile(ctx context.Context, filename, contentType string, data []byte) error
}

var _ FileWriter = (*LodeReporter)(nil)

// PutFile writes a sidecar file to the store at the build's files/ path.
// Files bypass Dataset segment/manifest machinery entirely.
func (r *LodeReporter) PutFile(ctx context.Context, filename, _ string, data []byte) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	store, err := r.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, r.config.Dataset)
	}

	path := r.FilePath(filename)
	if err := store.Put(ctx, path, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, path)
	}
	return nil
}

// FilePath computes the store path for a sidecar file.
// Format: datasets/<dataset>/partitions/project=<p>/day=<d>/build_id=<b>/files/<filename>
func (r *LodeReporter) FilePath(filename string) string {
	return "datasets/" + r.config.Dataset + "/partitions/" + r.partitionPrefix() + "/files/" + filename
}

// getOrCreateStore lazily initializes the Store from the factory.
func (r *LodeReporter) getOrCreateStore() (lode.Store, error) {
	r.storeOnce.Do(func() {
		r.store, r.storeErr = r.storeFactory()
	})
	return r.store, r.storeErr
}

func validateFilename(name string) error {
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// StubFileWriter records PutFile calls for testing.
type StubFileWriter struct {
	mu    sync.Mutex
	Files []StubFileRecord
}

// StubFileRecord is a recorded file write.
type StubFileRecord struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewStubFileWriter creates a new stub file writer.
func NewStubFileWriter() *StubFileWriter {
	return &StubFileWriter{}
}

// PutFile implements FileWriter by recording the call.
func (w *StubFileWriter) PutFile(_ context.Context, filename, contentType string, data []byte) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Files = append(w.Files, StubFileRecord{
		Filename:    filename,
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	})
	return nil
}

var _ FileWriter = (*StubFileWriter)(nil)
