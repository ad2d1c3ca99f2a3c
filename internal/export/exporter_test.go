package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biobroker/biobroker/internal/crawler"
	"github.com/biobroker/biobroker/internal/dss"
	"github.com/biobroker/biobroker/internal/registry"
	"github.com/biobroker/biobroker/internal/staging"
	"github.com/biobroker/biobroker/internal/upload"
)

const testDCPVersion = "2019-06-03T10:15:30.452Z"

type openAreaProber struct{}

func (openAreaProber) AreaExists(context.Context, string) (bool, error) { return true, nil }

type stubUploader struct {
	mu    sync.Mutex
	files []string
}

func (u *stubUploader) StoreMetadata(ctx context.Context, areaUUID, fileName, metadataType string, content []byte) (*upload.FileDescription, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files = append(u.files, fileName)
	return &upload.FileDescription{Name: fileName, URL: "s3://staging/" + areaUUID + "/" + fileName}, nil
}

// exportBackend serves the registry, the store, and the storage-job surface
// for one export run.
type exportBackend struct {
	mu sync.Mutex

	server *httptest.Server

	bundlePut struct {
		CreatorUID string           `json:"creator_uid"`
		Files      []dss.BundleFile `json:"files"`
	}
	bundleConflict bool
	storedFiles    []string
	manifest       map[string]any
	hasStagingArea bool
}

func metadataDoc(base, selfPath, uuid, describedBy string, rels map[string]string) string {
	links := []string{fmt.Sprintf(`"self": {"href": "%s%s"}`, base, selfPath)}
	for rel, path := range rels {
		links = append(links, fmt.Sprintf(`"%s": {"href": "%s%s"}`, rel, base, path))
	}
	return fmt.Sprintf(`{
		"uuid": {"uuid": "%s"},
		"dcpVersion": "%s",
		"submissionDate": "2019-06-01T00:00:00.000Z",
		"updateDate": "2019-06-02T00:00:00.000Z",
		"content": {"describedBy": "%s"},
		"_links": {%s}
	}`, uuid, testDCPVersion, describedBy, strings.Join(links, ", "))
}

func embeddedPage(key string, docs ...string) string {
	return fmt.Sprintf(`{"_embedded": {"%s": [%s]}}`, key, strings.Join(docs, ", "))
}

func newExportBackend(t *testing.T) *exportBackend {
	t.Helper()
	b := &exportBackend{hasStagingArea: true}
	mux := http.NewServeMux()
	handle := func(path string, fn func(base string, w http.ResponseWriter, r *http.Request)) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			defer b.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			fn("http://"+r.Host, w, r)
		})
	}

	donor := func(base string) string {
		return metadataDoc(base, "/biomaterials/d1", "d1",
			"https://schema.example.org/type/biomaterial/10.2.0/donor_organism", nil)
	}
	suspension := func(base string) string {
		return metadataDoc(base, "/biomaterials/s1", "s1",
			"https://schema.example.org/type/biomaterial/13.0.0/cell_suspension",
			map[string]string{"derivedByProcesses": "/biomaterials/s1/derivedByProcesses"})
	}
	process := func(base string) string {
		return metadataDoc(base, "/processes/p1", "p1",
			"https://schema.example.org/type/process/9.0.0/process",
			map[string]string{
				"derivedBiomaterials": "/processes/p1/derivedBiomaterials",
				"derivedFiles":        "/processes/p1/derivedFiles",
				"inputBiomaterials":   "/processes/p1/inputBiomaterials",
				"inputFiles":          "/processes/p1/inputFiles",
				"protocols":           "/processes/p1/protocols",
			})
	}
	protocol := func(base string) string {
		return metadataDoc(base, "/protocols/pr1", "pr1",
			"https://schema.example.org/type/protocol/biomaterial_collection/6.0.0/dissociation_protocol", nil)
	}
	project := func(base string) string {
		return metadataDoc(base, "/projects/pj1", "pj1",
			"https://schema.example.org/type/project/9.0.2/project", nil)
	}

	handle("/", func(base string, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, fmt.Sprintf(`{"_links": {
			"submissionEnvelopes": {"href": "%[1]s/submissionEnvelopes"},
			"processes": {"href": "%[1]s/processes"},
			"storageJobs": {"href": "%[1]s/storageJobs"}
		}}`, base))
	})
	handle("/submissionEnvelopes/search/findByUuid", func(base string, w http.ResponseWriter, r *http.Request) {
		stagingDetails := `"stagingDetails": {"stagingAreaUuid": {"uuid": "area-1"}},`
		if !b.hasStagingArea {
			stagingDetails = ""
		}
		io.WriteString(w, fmt.Sprintf(`{
			"uuid": {"uuid": "env1"},
			"content": {%s "describedBy": ""},
			"_links": {
				"self": {"href": "%[2]s/submissionEnvelopes/1"},
				"projects": {"href": "%[2]s/submissionEnvelopes/1/projects"},
				"bundleManifests": {"href": "%[2]s/submissionEnvelopes/1/bundleManifests"}
			}
		}`, stagingDetails, base))
	})
	handle("/submissionEnvelopes/1", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, fmt.Sprintf(`{"_links": {
			"self": {"href": "%[1]s/submissionEnvelopes/1"},
			"projects": {"href": "%[1]s/submissionEnvelopes/1/projects"},
			"bundleManifests": {"href": "%[1]s/submissionEnvelopes/1/bundleManifests"}
		}}`, base))
	})
	handle("/submissionEnvelopes/1/projects", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, embeddedPage("projects", project(base)))
	})
	handle("/submissionEnvelopes/1/bundleManifests", func(base string, w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&b.manifest)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{}`)
	})
	handle("/processes/search/findByUuid", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, process(base))
	})
	handle("/processes/p1/derivedBiomaterials", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, embeddedPage("biomaterials", suspension(base)))
	})
	handle("/processes/p1/derivedFiles", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, embeddedPage("files"))
	})
	handle("/processes/p1/inputBiomaterials", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, embeddedPage("biomaterials", donor(base)))
	})
	handle("/processes/p1/inputFiles", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, embeddedPage("files"))
	})
	handle("/processes/p1/protocols", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, embeddedPage("protocols", protocol(base)))
	})
	handle("/biomaterials/s1/derivedByProcesses", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, embeddedPage("processes", process(base)))
	})

	handle("/storageJobs", func(base string, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"_links": {"self": {"href": "`+base+`/storageJobs/1"}}}`)
	})
	handle("/storageJobs/1", func(base string, w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})

	handle("/v1/files/", func(base string, w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			uuid := strings.TrimPrefix(r.URL.Path, "/v1/files/")
			b.storedFiles = append(b.storedFiles, uuid)
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{}`)
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		}
	})
	handle("/v1/bundles/b1", func(base string, w http.ResponseWriter, r *http.Request) {
		if b.bundleConflict {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{}`)
			return
		}
		json.NewDecoder(r.Body).Decode(&b.bundlePut)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{}`)
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *exportBackend) exporter(t *testing.T, uploader *stubUploader) *Exporter {
	t.Helper()
	client := registry.NewClient(registry.Config{BaseURL: b.server.URL, RetryMax: 1})
	store := dss.NewClient(dss.Config{BaseURL: b.server.URL, RetryMax: 1})
	stagingService := staging.NewService(staging.NewMemoryRepository(), uploader, time.Millisecond, 3, nil)
	now := time.Date(2019, 6, 3, 10, 15, 30, 452000000, time.UTC)
	return NewExporter(ExporterConfig{
		Registry:         client,
		Crawler:          crawler.New(client, nil),
		Staging:          stagingService,
		Storage:          NewStorageService(client, time.Millisecond, 2, 2, nil),
		Store:            store,
		Areas:            openAreaProber{},
		CreatorUID:       "8008",
		CopyPollInterval: time.Millisecond,
		CopyPollTimeout:  time.Second,
		Now:              func() time.Time { return now },
	})
}

func TestExportBundle(t *testing.T) {
	backend := newExportBackend(t)
	uploader := &stubUploader{}
	exporter := backend.exporter(t, uploader)

	manifest, err := exporter.ExportBundle(context.Background(), "env1", "p1", "b1")
	require.NoError(t, err)

	assert.Equal(t, "env1", manifest.EnvelopeUUID)
	assert.Equal(t, "b1", manifest.BundleUUID)
	assert.Equal(t, "2019-06-03T101530.452000Z", manifest.BundleVersion)
	assert.Equal(t, map[string]bool{"s1": true, "d1": true}, manifest.FileBiomaterial)
	assert.Equal(t, map[string]bool{"p1": true}, manifest.FileProcess)
	assert.Equal(t, map[string]bool{"pr1": true}, manifest.FileProtocol)
	assert.Equal(t, map[string]bool{"pj1": true}, manifest.FileProject)
	assert.Empty(t, manifest.FileFiles)
	assert.Empty(t, manifest.DataFiles)

	// Five graph documents plus the links document were staged and stored.
	assert.Len(t, uploader.files, 6)
	assert.Len(t, backend.storedFiles, 6)

	require.Len(t, backend.bundlePut.Files, 6)
	assert.Equal(t, "8008", backend.bundlePut.CreatorUID)
	for _, file := range backend.bundlePut.Files {
		assert.True(t, file.Indexed)
		assert.Equal(t, "2019-06-03T101530.452000Z", file.Version)
	}

	// The manifest was persisted against the submission.
	require.NotNil(t, backend.manifest)
	assert.Equal(t, "b1", backend.manifest["bundleUuid"])
}

func TestExportBundleRejectsExistingBundle(t *testing.T) {
	backend := newExportBackend(t)
	backend.bundleConflict = true
	exporter := backend.exporter(t, &stubUploader{})

	_, err := exporter.ExportBundle(context.Background(), "env1", "p1", "b1")
	require.ErrorIs(t, err, ErrBundleAlreadyExists)
}

func TestExportBundleRequiresStagingArea(t *testing.T) {
	backend := newExportBackend(t)
	backend.hasStagingArea = false
	exporter := backend.exporter(t, &stubUploader{})

	_, err := exporter.ExportBundle(context.Background(), "env1", "p1", "b1")
	require.ErrorIs(t, err, ErrNoUploadAreaFound)
}
