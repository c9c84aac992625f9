package cmd

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/percy/percy-go/environment"
)

var noGit = environment.GitFunc(func(...string) (string, error) {
	return "", errors.New("git unavailable")
})

// stubEnvironment makes commands resolve vars instead of the process
// environment, and isolates them from flags bound to PERCY_* variables.
func stubEnvironment(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range []string{
		"PERCY_TOKEN", "PERCY_API", "PERCY_PROJECT", "PERCY_CONFIG",
		"PERCY_BUILD_ID", "PERCY_LOGLEVEL", "NO_COLOR",
	} {
		// Unset rather than empty: a set but empty variable still counts as
		// a flag value.
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PERCY_DISABLE_DOTENV", "true")

	if vars == nil {
		vars = map[string]string{}
	}
	prev := newEnvironment
	newEnvironment = func() *environment.Environment {
		env, err := environment.New(vars, environment.WithGit(noGit))
		if err != nil {
			t.Fatalf("environment.New: %v", err)
		}
		return env
	}
	t.Cleanup(func() { newEnvironment = prev })
}

// runApp runs the CLI with args and returns stdout, stderr and the error
// the action returned.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	app := NewApp("test-commit")
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.RunContext(t.Context(), append([]string{"percy"}, args...))
	return stdout.String(), stderr.String(), err
}

func exitCodeOf(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func sha(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// writeSite creates files under a temp dir and returns the dir.
func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".percy.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakePercy is an in-memory Percy API for build id "123".
type fakePercy struct {
	server *httptest.Server

	// missing lists the SHAs the create-build response reports missing.
	missing []string
	// finalizeStatus, when set, fails build finalize with that status.
	finalizeStatus int

	mu            sync.Mutex
	auth          string
	requests      []string
	uploaded      []string
	buildBody     []byte
	finalizeQuery string
	listQuery     string
	snapshotNames []string
	snapshots     atomic.Int32
}

func newFakePercy(t *testing.T, missing ...string) *fakePercy {
	t.Helper()
	f := &fakePercy{missing: missing}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePercy) apiURL() string { return f.server.URL + "/api/v1" }

func (f *fakePercy) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")

	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+path)
	f.auth = r.Header.Get("Authorization")
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/vnd.api+json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/builds/"):
		f.mu.Lock()
		f.buildBody = body
		f.mu.Unlock()
		ids := make([]map[string]string, len(f.missing))
		for i, s := range f.missing {
			ids[i] = map[string]string{"type": "resources", "id": s}
		}
		linkage, _ := json.Marshal(ids)
		_, _ = fmt.Fprintf(w, `{"data":{"type":"builds","id":"123","attributes":{"web-url":"https://percy.io/org/app/builds/123","state":"pending"},"relationships":{"missing-resources":{"data":%s}}}}`, linkage)

	case r.Method == http.MethodPost && path == "/builds/123/resources/":
		var payload struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		_ = json.Unmarshal(body, &payload)
		f.mu.Lock()
		f.uploaded = append(f.uploaded, payload.Data.ID)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"success":true}`)

	case r.Method == http.MethodPost && path == "/builds/123/snapshots/":
		var payload struct {
			Data struct {
				Attributes struct {
					Name string `json:"name"`
				} `json:"attributes"`
			} `json:"data"`
		}
		_ = json.Unmarshal(body, &payload)
		f.mu.Lock()
		f.snapshotNames = append(f.snapshotNames, payload.Data.Attributes.Name)
		f.mu.Unlock()
		n := f.snapshots.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"data":{"type":"snapshots","id":"snap-%d","relationships":{"missing-resources":{"data":[]}}}}`, n)

	case r.Method == http.MethodPost && strings.HasPrefix(path, "/snapshots/") && strings.HasSuffix(path, "/finalize"):
		_, _ = io.WriteString(w, `{"success":true}`)

	case r.Method == http.MethodPost && path == "/builds/123/finalize":
		f.mu.Lock()
		f.finalizeQuery = r.URL.RawQuery
		f.mu.Unlock()
		if f.finalizeStatus != 0 {
			w.WriteHeader(f.finalizeStatus)
			_, _ = io.WriteString(w, `{"errors":[{"detail":"build is already finalized"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"type":"builds","id":"123","attributes":{"state":"processing","web-url":"https://percy.io/org/app/builds/123"}}}`)

	case r.Method == http.MethodGet && path == "/builds/123":
		_, _ = io.WriteString(w, `{"data":{"type":"builds","id":"123","attributes":{"build-number":7,"state":"finished","branch":"main","commit-sha":"abc"}}}`)

	case r.Method == http.MethodGet && path == "/projects/org/app/builds":
		f.mu.Lock()
		f.listQuery = r.URL.RawQuery
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"data":[{"type":"builds","id":"2","attributes":{"state":"pending"}},{"type":"builds","id":"1","attributes":{"state":"finished"}}]}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"errors":[{"detail":"not found"}]}`)
	}
}

func (f *fakePercy) requestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakePercy) uploadedSHAs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploaded...)
}

func (f *fakePercy) lastBuildBody() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buildBody
}

func (f *fakePercy) lastFinalizeQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalizeQuery
}

func (f *fakePercy) lastListQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listQuery
}

func (f *fakePercy) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

func (f *fakePercy) snapshotNamesSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.snapshotNames...)
}
