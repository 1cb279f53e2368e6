package storage

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/awsl-pic-pipeline/internal/blob"
	"github.com/awsl-project/awsl-pic-pipeline/internal/errors"
)

const (
	testBaseURL   = "https://storage.test"
	testGroupAPI  = testBaseURL + "/api/upload/group"
	testUploadAPI = testBaseURL + "/api/upload"
)

// newTestClient returns a client with mocked transport and no real sleeping.
// Observed sleep durations are appended to the returned slice.
func newTestClient(t *testing.T) (*Client, *[]time.Duration) {
	t.Helper()

	client, err := NewClient(Config{BaseURL: testBaseURL, APIToken: "token"})
	require.NoError(t, err)

	var slept []time.Duration
	client.sleep = func(d time.Duration) { slept = append(slept, d) }

	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	return client, &slept
}

func testGroup(urlCount int) *blob.UploadGroup {
	group := &blob.UploadGroup{AwslID: 42, Caption: "#tester https://weibo.com/1/abc"}
	for i := 0; i < urlCount; i++ {
		group.BlobGroups = append(group.BlobGroups, blob.BlobGroup{
			ID:     uint64(i + 1),
			AwslID: 42,
			Blobs: blob.Blobs{Blobs: map[string]blob.Blob{
				"original": {URL: fmt.Sprintf("https://img.test/pic%d.jpg", i+1)},
			}},
		})
	}
	return group
}

// groupSuccessBody builds a success envelope with one rendition per URL.
func groupSuccessBody(urls []string) string {
	files := make([][]map[string]any, 0, len(urls))
	for i := range urls {
		files = append(files, []map[string]any{
			{"file_id": fmt.Sprintf("file-%d", i+1), "width": 900, "height": 400},
		})
	}
	body, _ := json.Marshal(map[string]any{"success": true, "files": files})
	return string(body)
}

func decodeGroupRequest(t *testing.T, req *http.Request) groupUploadRequest {
	t.Helper()
	var payload groupUploadRequest
	require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
	return payload
}

func TestNewClient_RequiresConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing base url", Config{APIToken: "token"}},
		{"missing api token", Config{BaseURL: testBaseURL}},
		{"missing both", Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, client)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestFileURL_TrimsTrailingSlash(t *testing.T) {
	client, err := NewClient(Config{BaseURL: testBaseURL + "/", APIToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/file/abc", client.FileURL("abc"))
}

func TestUploadMediaGroup_EmptyGroup(t *testing.T) {
	client, _ := newTestClient(t)

	result, err := client.UploadMediaGroup(&blob.UploadGroup{AwslID: 1})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestUploadMediaGroup_SingleBatchSuccess(t *testing.T) {
	client, _ := newTestClient(t)
	group := testGroup(2)

	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		func(req *http.Request) (*http.Response, error) {
			payload := decodeGroupRequest(t, req)
			assert.Len(t, payload.URLs, 2)
			assert.Equal(t, group.Caption, payload.Caption)
			assert.Equal(t, "token", req.Header.Get("X-Api-Token"))
			return httpmock.NewStringResponse(http.StatusOK, groupSuccessBody(payload.URLs)), nil
		})

	result, err := client.UploadMediaGroup(group)

	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)

	first := result.Succeeded[0]
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, uint64(42), first.AwslID)
	assert.Equal(t, testBaseURL+"/file/file-1", first.Blobs.Blobs["original"].URL)
	assert.Equal(t, "file-1", first.Blobs.Blobs["original"].FileID)
}

func TestUploadMediaGroup_RateLimitRetries(t *testing.T) {
	client, slept := newTestClient(t)
	group := testGroup(1)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		func(req *http.Request) (*http.Response, error) {
			payload := decodeGroupRequest(t, req)
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusOK,
					`{"success": false, "error": "Too Many Requests: retry after 16"}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, groupSuccessBody(payload.URLs)), nil
		})

	result, err := client.UploadMediaGroup(group)

	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 1)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 2, calls)
	require.Len(t, *slept, 1)
	assert.Equal(t, 16*time.Second, (*slept)[0])
}

func TestUploadMediaGroup_BatchFailureMarksAllFailed(t *testing.T) {
	client, _ := newTestClient(t)
	group := testGroup(3)

	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		httpmock.NewStringResponder(http.StatusOK, `{"success": false, "error": "internal error"}`))

	result, err := client.UploadMediaGroup(group)

	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	assert.Len(t, result.Failed, 3)
	// Failed groups come back unchanged for cleanup.
	assert.Equal(t, group.BlobGroups[0].Blobs, result.Failed[0].Blobs)
	// Every attempt was made before giving up.
	assert.Equal(t, MaxRetries, httpmock.GetTotalCallCount())
}

func TestUploadMediaGroup_DegradationCascade(t *testing.T) {
	client, slept := newTestClient(t)
	group := testGroup(8)

	var batchSizes []int
	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		func(req *http.Request) (*http.Response, error) {
			payload := decodeGroupRequest(t, req)
			batchSizes = append(batchSizes, len(payload.URLs))
			switch {
			case len(payload.URLs) > 1 && payload.URLs[0] == "https://img.test/pic1.jpg":
				// First batch of six uploads cleanly.
				return httpmock.NewStringResponse(http.StatusOK, groupSuccessBody(payload.URLs)), nil
			case len(payload.URLs) == 2:
				// Second batch is rejected as unembeddable.
				return httpmock.NewStringResponse(http.StatusOK,
					`{"success": false, "error": "Telegram says: WEBPAGE_MEDIA_EMPTY"}`), nil
			case payload.URLs[0] == "https://img.test/pic7.jpg":
				// First individual retry succeeds as a photo.
				return httpmock.NewStringResponse(http.StatusOK, groupSuccessBody(payload.URLs)), nil
			default:
				// Second individual retry keeps failing, forcing document fallback.
				return httpmock.NewStringResponse(http.StatusOK,
					`{"success": false, "error": "WEBPAGE_MEDIA_EMPTY"}`), nil
			}
		})

	httpmock.RegisterResponder(http.MethodGet, "https://img.test/pic8.jpg",
		httpmock.NewStringResponder(http.StatusOK, "jpeg-bytes"))
	httpmock.RegisterResponder(http.MethodPost, testUploadAPI,
		httpmock.NewStringResponder(http.StatusOK,
			`{"success": true, "files": [{"file_id": "doc-8", "width": 1000, "height": 800}]}`))

	result, err := client.UploadMediaGroup(group)

	require.NoError(t, err)
	assert.Equal(t, []int{6, 2, 1, 1}, batchSizes)
	assert.Len(t, result.Succeeded, 8)
	assert.Empty(t, result.Failed)

	// The document-fallback pic resolved through the single-file endpoint.
	last := result.Succeeded[7]
	assert.Equal(t, uint64(8), last.ID)
	assert.Equal(t, testBaseURL+"/file/doc-8", last.Blobs.Blobs["original"].URL)
	assert.Equal(t, "doc-8", last.Blobs.Blobs["original"].FileID)

	// One pacing delay between the two individual retries, none after the last.
	assert.Contains(t, *slept, IndividualRetryDelay)
}

func TestUploadMediaGroup_DocumentFallbackFails(t *testing.T) {
	client, _ := newTestClient(t)
	group := testGroup(2)

	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		func(req *http.Request) (*http.Response, error) {
			payload := decodeGroupRequest(t, req)
			if payload.URLs[0] == "https://img.test/pic1.jpg" && len(payload.URLs) == 1 {
				return httpmock.NewStringResponse(http.StatusOK, groupSuccessBody(payload.URLs)), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`{"success": false, "error": "WEBPAGE_MEDIA_EMPTY"}`), nil
		})
	// The raw image cannot be downloaded, so the document fallback is skipped.
	httpmock.RegisterResponder(http.MethodGet, "https://img.test/pic2.jpg",
		httpmock.NewStringResponder(http.StatusNotFound, "gone"))

	result, err := client.UploadMediaGroup(group)

	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, uint64(1), result.Succeeded[0].ID)
	assert.Equal(t, uint64(2), result.Failed[0].ID)
}

func TestUploadMediaGroup_PartitionAccountsForEveryPic(t *testing.T) {
	client, _ := newTestClient(t)
	group := testGroup(7)

	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		func(req *http.Request) (*http.Response, error) {
			payload := decodeGroupRequest(t, req)
			if len(payload.URLs) == 6 {
				return httpmock.NewStringResponse(http.StatusOK, groupSuccessBody(payload.URLs)), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"success": false, "error": "boom"}`), nil
		})

	result, err := client.UploadMediaGroup(group)

	require.NoError(t, err)
	assert.Equal(t, len(group.BlobGroups), len(result.Succeeded)+len(result.Failed))

	seen := map[uint64]bool{}
	for _, bg := range result.Succeeded {
		assert.False(t, seen[bg.ID], "pic %d appears twice", bg.ID)
		seen[bg.ID] = true
	}
	for _, bg := range result.Failed {
		assert.False(t, seen[bg.ID], "pic %d appears twice", bg.ID)
		seen[bg.ID] = true
	}
	assert.Len(t, seen, 7)
}

func TestUploadBatch_MalformedResponseRetries(t *testing.T) {
	client, slept := newTestClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusOK, `{invalid json`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, groupSuccessBody([]string{"u"})), nil
		})

	result := client.uploadBatch([]string{"https://img.test/pic1.jpg"}, "")

	assert.Len(t, result.files, 1)
	assert.False(t, result.webpageMediaEmpty)
	assert.Equal(t, 2, calls)
	require.Len(t, *slept, 1)
	assert.Equal(t, RetryDelay, (*slept)[0])
}

// A success envelope with fewer rendition lists than submitted URLs cannot be
// mapped back onto the group; it is retried like any other malformed response.
func TestUploadMediaGroup_ShortSuccessResponseRetries(t *testing.T) {
	client, slept := newTestClient(t)
	group := testGroup(3)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		func(req *http.Request) (*http.Response, error) {
			payload := decodeGroupRequest(t, req)
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusOK,
					`{"success": true, "files": [[{"file_id": "file-1", "width": 900, "height": 400}]]}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, groupSuccessBody(payload.URLs)), nil
		})

	result, err := client.UploadMediaGroup(group)

	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 3)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 2, calls)
	require.Len(t, *slept, 1)
	assert.Equal(t, RetryDelay, (*slept)[0])
}

func TestUploadMediaGroup_ShortResponseExhaustsRetries(t *testing.T) {
	client, _ := newTestClient(t)
	group := testGroup(3)

	httpmock.RegisterResponder(http.MethodPost, testGroupAPI,
		httpmock.NewStringResponder(http.StatusOK,
			`{"success": true, "files": [[{"file_id": "file-1"}]]}`))

	result, err := client.UploadMediaGroup(group)

	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	// Every pic is accounted for even when the server never aligns.
	assert.Len(t, result.Failed, 3)
	assert.Equal(t, MaxRetries, httpmock.GetTotalCallCount())
}
