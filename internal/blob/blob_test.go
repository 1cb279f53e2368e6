package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int {
	return &v
}

func file(id string, width, height int) TelegramFile {
	return TelegramFile{FileID: id, Width: intPtr(width), Height: intPtr(height)}
}

func TestLargestFile(t *testing.T) {
	tests := []struct {
		name  string
		files []TelegramFile
		want  string
	}{
		{
			name:  "picks largest area",
			files: []TelegramFile{file("small", 100, 100), file("wide", 900, 400), file("medium", 300, 300)},
			want:  "wide",
		},
		{
			name:  "last file when no dimensions",
			files: []TelegramFile{{FileID: "a"}, {FileID: "b"}, {FileID: "c"}},
			want:  "c",
		},
		{
			name:  "ignores files missing a dimension",
			files: []TelegramFile{{FileID: "nodim", Width: intPtr(5000)}, file("sized", 10, 10)},
			want:  "sized",
		},
		{
			name:  "single file",
			files: []TelegramFile{file("only", 1, 1)},
			want:  "only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LargestFile(tt.files)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.FileID)
		})
	}
}

func TestLargestFile_Empty(t *testing.T) {
	assert.Nil(t, LargestFile(nil))
}

func TestFirstFileOver800(t *testing.T) {
	tests := []struct {
		name  string
		files []TelegramFile
		want  string
	}{
		{
			name:  "first over 800 wide",
			files: []TelegramFile{file("small", 100, 100), file("wide", 900, 400), file("tall", 400, 900)},
			want:  "wide",
		},
		{
			name:  "height qualifies too",
			files: []TelegramFile{file("small", 100, 100), file("tall", 400, 900)},
			want:  "tall",
		},
		{
			name:  "exactly 800 does not qualify",
			files: []TelegramFile{file("edge", 800, 800), file("last", 10, 10)},
			want:  "last",
		},
		{
			name:  "last file when none qualify",
			files: []TelegramFile{file("a", 100, 100), file("b", 200, 200)},
			want:  "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FirstFileOver800(tt.files)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.FileID)
		})
	}
}

func TestFirstFileOver800_Empty(t *testing.T) {
	assert.Nil(t, FirstFileOver800(nil))
}

func TestFilesToBlobs(t *testing.T) {
	files := []TelegramFile{
		file("thumb", 100, 100),
		file("big", 900, 400),
		file("mid", 300, 300),
	}
	buildURL := func(fileID string) string { return "https://storage.test/file/" + fileID }

	blobs := FilesToBlobs(files, buildURL)

	require.Contains(t, blobs.Blobs, "original")
	require.Contains(t, blobs.Blobs, "large")

	original := blobs.Blobs["original"]
	assert.Equal(t, "big", original.FileID)
	assert.Equal(t, "https://storage.test/file/big", original.URL)
	require.NotNil(t, original.Width)
	assert.Equal(t, 900, *original.Width)

	// Both variants may resolve to the same rendition.
	large := blobs.Blobs["large"]
	assert.Equal(t, "big", large.FileID)
}

func TestBlobsMarshalString(t *testing.T) {
	blobs := Blobs{Blobs: map[string]Blob{
		"original": {URL: "https://storage.test/file/abc", FileID: "abc", Width: intPtr(900), Height: intPtr(400)},
	}}

	out, err := blobs.MarshalString()
	require.NoError(t, err)
	assert.JSONEq(t, `{"blobs":{"original":{"url":"https://storage.test/file/abc","file_id":"abc","width":900,"height":400}}}`, out)
}
