package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, pngHeader)
	return data
}

func doUpload(router http.Handler, token, filename string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", filename)
	_, _ = part.Write(content)
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadStoresImageUnderUserPrefix(t *testing.T) {
	router, store := newTestRouter(t)
	reg := registerUser(t, router, "alice")

	rec := doUpload(router, reg.AccessToken, "page.PNG", pngBytes(256))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "page.PNG", resp.Filename)
	assert.Equal(t, int64(256), resp.SizeBytes)
	assert.NotEmpty(t, resp.FileID)

	key := "uploads/" + reg.User.ID + "/" + resp.FileID + ".png"
	assert.Equal(t, "s3://"+testBucket+"/"+key, resp.Location)
	assert.Equal(t, []string{key}, store.keys())
	assert.Equal(t, "image/png", store.types[key])
}

func TestUploadRejections(t *testing.T) {
	store := newMemoryStorage()
	router := newRouter(newAuthService(t), store, UploadConfig{Bucket: testBucket, KeyPrefix: "uploads", MaxBytes: 1024})
	reg := registerUser(t, router, "alice")

	tests := []struct {
		name     string
		token    string
		filename string
		content  []byte
		code     int
	}{
		{"unauthenticated", "", "page.png", pngBytes(64), http.StatusUnauthorized},
		{"unsupported extension", reg.AccessToken, "page.gif", pngBytes(64), http.StatusBadRequest},
		{"no extension", reg.AccessToken, "page", pngBytes(64), http.StatusBadRequest},
		{"too large", reg.AccessToken, "page.png", pngBytes(2048), http.StatusRequestEntityTooLarge},
		{"not an image", reg.AccessToken, "page.png", []byte(strings.Repeat("plain text ", 10)), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doUpload(router, tc.token, tc.filename, tc.content)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, store.keys())
}

func TestUploadWithoutStorage(t *testing.T) {
	router := newRouter(newAuthService(t), nil, UploadConfig{})
	reg := registerUser(t, router, "alice")

	rec := doUpload(router, reg.AccessToken, "page.png", pngBytes(64))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListAndDeleteUploads(t *testing.T) {
	router, store := newTestRouter(t)
	alice := registerUser(t, router, "alice")
	bob := registerUser(t, router, "bob")

	rec := doUpload(router, alice.AccessToken, "a.png", pngBytes(100))
	require.Equal(t, http.StatusOK, rec.Code)
	var uploaded UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	require.Equal(t, http.StatusOK, doUpload(router, bob.AccessToken, "b.png", pngBytes(100)).Code)

	rec = doJSON(router, http.MethodGet, "/api/uploads", nil, alice.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var objects []StorageObjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &objects))
	require.Len(t, objects, 1)
	assert.Equal(t, uploaded.FileID, objects[0].FileID)
	assert.Equal(t, int64(100), objects[0].Size)

	rec = doJSON(router, http.MethodDelete, "/api/uploads/not-a-uuid", nil, alice.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(router, http.MethodDelete, "/api/uploads/"+uploaded.FileID, nil, alice.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.keys(), 1)

	rec = doJSON(router, http.MethodGet, "/api/uploads", nil, alice.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
