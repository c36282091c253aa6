package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = string(data)
	return &manager.UploadOutput{Location: "s3://" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)}, nil
}

func TestArchiveUploadsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "Clip.mp4")
	require.NoError(t, os.WriteFile(file, []byte("video"), 0644))
	up := &fakeUploader{}
	a := NewWithUploader(up, "media", "/tubeq/")

	require.NoError(t, a.Archive(context.Background(), "job-1", file))
	assert.Equal(t, "media", aws.ToString(up.input.Bucket))
	assert.Equal(t, "tubeq/Clip.mp4", aws.ToString(up.input.Key))
	assert.Equal(t, "video/mp4", aws.ToString(up.input.ContentType))
	assert.Equal(t, "job-1", up.input.Metadata["job-id"])
	assert.Equal(t, "video", up.body)
}

func TestArchiveErrors(t *testing.T) {
	a := NewWithUploader(&fakeUploader{}, "media", "")
	require.Error(t, a.Archive(context.Background(), "job", filepath.Join(t.TempDir(), "missing.mp3")))

	file := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0644))
	a = NewWithUploader(&fakeUploader{err: errors.New("denied")}, "media", "")
	err := a.Archive(context.Background(), "job", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://media/song.mp3")
}

func TestObjectKeyAndContentType(t *testing.T) {
	assert.Equal(t, "a.mp3", ObjectKey("", "/x/a.mp3"))
	assert.Equal(t, "p/q/a.mp3", ObjectKey("p/q", "/x/a.mp3"))
	assert.Equal(t, "audio/mpeg", ContentType("A.MP3"))
	assert.Equal(t, "application/octet-stream", ContentType("a.webm"))
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Bucket: "b"}.Enabled())
}
