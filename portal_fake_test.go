package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const fakeExpiredBody = `{"code":"token_not_valid","messages":[{"token_class":"AccessToken","token_type":"access","message":"Token is expired"}]}`

// fakePortal is an in-memory stand-in for the backend.
type fakePortal struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	validAccess   map[string]bool
	nextAccess    string
	loginStatus   int
	files         []map[string]any
	uploads       map[string]bool
	summaryQuery  string
	refreshCalls  int
	rejectAllAuth bool
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()

	f := &fakePortal{
		t:           t,
		validAccess: map[string]bool{"a1": true},
		nextAccess:  "a2",
		loginStatus: http.StatusOK,
		uploads:     map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login/", f.login)
	mux.HandleFunc("POST /users/refresh/", f.refresh)
	mux.HandleFunc("GET /users/profile/", f.authed(f.profile))
	mux.HandleFunc("GET /api/files/", f.authed(f.listFiles))
	mux.HandleFunc("POST /api/files/", f.authed(f.upload))
	mux.HandleFunc("GET /api/files/summary/", f.authed(f.summary))
	mux.HandleFunc("GET /api/files/{id}/", f.authed(f.detail))
	mux.HandleFunc("DELETE /api/files/{id}/", f.authed(f.remove))
	mux.HandleFunc("GET /api/files/{id}/download/", f.authed(f.download))
	mux.HandleFunc("GET /media/reports/{id}", f.report)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.files = []map[string]any{
		{
			"id": 1, "file": "/media/uploads/q1.xlsx", "uploaded_at": "2025-03-01T10:00:00Z",
			"file_name": "q1.xlsx", "file_size": 1536, "report_url": f.srv.URL + "/media/reports/1",
		},
		{
			"id": 2, "file": "/media/uploads/q2.xlsx", "uploaded_at": "2025-03-02T10:00:00Z",
			"file_name": "q2.xlsx", "file_size": 10, "report_url": nil,
		},
	}

	return f
}

// expire makes the current access token look expired to the backend.
func (f *fakePortal) expire(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.validAccess, token)
}

func (f *fakePortal) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		f.mu.Lock()
		ok := f.validAccess[tok] && !f.rejectAllAuth
		reject := f.rejectAllAuth
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusUnauthorized)

			if reject {
				_, _ = w.Write([]byte(`{"detail":"User is inactive"}`))
			} else {
				_, _ = w.Write([]byte(fakeExpiredBody))
			}

			return
		}

		next(w, r)
	}
}

func (f *fakePortal) login(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	status := f.loginStatus
	f.mu.Unlock()

	if status != http.StatusOK || body["password"] != "pw" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))

		return
	}

	_, _ = w.Write([]byte(`{"access":"a1","refresh":"r1"}`))
}

func (f *fakePortal) refresh(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.refreshCalls++

	if body["refresh"] != "r1" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.validAccess[f.nextAccess] = true
	fmt.Fprintf(w, `{"access":%q}`, f.nextAccess)
}

func (f *fakePortal) profile(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte(`{"id":5,"username":"alice","email":"alice@example.kz"}`))
}

func (f *fakePortal) listFiles(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_ = json.NewEncoder(w).Encode(f.files)
}

func (f *fakePortal) upload(w http.ResponseWriter, r *http.Request) {
	file, hdr, err := r.FormFile("file")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No file provided"}`))

		return
	}
	defer file.Close()

	content, _ := io.ReadAll(file)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploads[string(content)] {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"This file has already been processed recently."}`))

		return
	}

	f.uploads[string(content)] = true
	id := len(f.files) + 1
	rec := map[string]any{
		"id": id, "file": "/media/uploads/" + hdr.Filename, "uploaded_at": "2025-03-03T10:00:00Z",
		"file_name": hdr.Filename, "file_size": len(content), "report_url": nil,
	}
	f.files = append(f.files, rec)

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

func (f *fakePortal) find(id string) map[string]any {
	for _, rec := range f.files {
		if fmt.Sprint(rec["id"]) == id {
			return rec
		}
	}

	return nil
}

func (f *fakePortal) detail(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.find(r.PathValue("id"))
	if rec == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	_ = json.NewEncoder(w).Encode(rec)
}

func (f *fakePortal) remove(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := r.PathValue("id")
	for i, rec := range f.files {
		if fmt.Sprint(rec["id"]) == id {
			f.files = append(f.files[:i], f.files[i+1:]...)
			w.WriteHeader(http.StatusNoContent)

			return
		}
	}

	w.WriteHeader(http.StatusNotFound)
}

func (f *fakePortal) download(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("content of " + r.PathValue("id")))
}

func (f *fakePortal) summary(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.summaryQuery = r.URL.RawQuery
	f.mu.Unlock()

	_, _ = w.Write([]byte(`{"summary":{"total_files":2,"total_quota_counts":{"A":3,"notes":{"X":1}},` +
		`"total_specialization_counts":{"S":2},"processing_stats":{"average_processing_time_seconds":1.25,` +
		`"total_processing_time_seconds":2.5,"files_with_processing_data":2},"file_upload_timeline":[],` +
		`"most_active_days":[{"date":"2025-03-01","uploads":2}]},"metadata":{"generated_at":"2025-03-04T00:00:00Z",` +
		`"time_range_days":30,"files_included":2,"date_range":{"start":"2025-02-02","end":"2025-03-04"}}}`))
}

func (f *fakePortal) report(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	_, _ = w.Write([]byte(`{"quota_counts":{"A":3,"B":{"X":1,"Y":2}},"specialization_counts":{"S":4}}`))
}

// cliEnv runs root commands against a fakePortal with credentials in a
// temp directory.
type cliEnv struct {
	portal   *fakePortal
	dir      string
	cfgPath  string
	credPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	fp := newFakePortal(t)

	e := &cliEnv{
		portal:   fp,
		dir:      dir,
		cfgPath:  filepath.Join(dir, "config.toml"),
		credPath: filepath.Join(dir, "data", "credentials.json"),
	}

	cfg := fmt.Sprintf("[api]\nhost = %q\n\n[storage]\npath = %q\n\n[logging]\nlog_level = \"error\"\n",
		fp.srv.URL, e.credPath)
	require.NoError(t, os.WriteFile(e.cfgPath, []byte(cfg), 0o600))

	t.Setenv("PORTAL_GO_API_HOST", "")
	t.Setenv("PORTAL_GO_STORAGE", "")
	t.Setenv("PORTAL_GO_CONFIG", "")

	return e
}

// run executes one command and returns its stdout.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", e.cfgPath, "--quiet"}, args...))
	cmd.SetIn(strings.NewReader(stdin))

	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()

	return stdout.String(), err
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()

	_, err := e.run(t, "pw\n", "login", "-u", "alice", "--password-stdin")
	require.NoError(t, err)
}

// storedKeys reads the credential file directly.
func (e *cliEnv) storedKeys(t *testing.T) map[string]string {
	t.Helper()

	data, err := os.ReadFile(e.credPath)
	if os.IsNotExist(err) {
		return map[string]string{}
	}

	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(data, &m))

	return m
}
