package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type object struct {
	body     []byte
	metadata map[string]string
}

// fakeS3 is an in-memory bucket returning list pages of pageSize keys.
type fakeS3 struct {
	objects  map[string]object
	pageSize int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]object{}, pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = object{body: body, metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body)), Metadata: obj.metadata}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k].body))),
			LastModified: aws.Time(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)),
		})
	}
	return out, nil
}

func TestTranscriptKey(t *testing.T) {
	started := time.Date(2026, 10, 18, 9, 30, 5, 0, time.FixedZone("CEST", 2*3600))
	require.Equal(t, "transcripts/run-000042-20261018T073005Z.log", TranscriptKey("transcripts", 42, started))
	require.Equal(t, "run-000001-20261018T073005Z.log", TranscriptKey("", 1, started))
}

func TestClient_UploadDownload(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	c := NewClientWithAPI(fake, "boot-logs")

	dir := t.TempDir()
	src := filepath.Join(dir, "run.log")
	require.NoError(t, os.WriteFile(src, []byte("U-Boot 2021.10\r\nVisionFive # "), 0o644))

	up, err := c.Upload(ctx, src, "transcripts/run.log")
	require.NoError(t, err)
	require.Equal(t, int64(29), up.Size)
	require.Equal(t, up.SHA256, fake.objects["transcripts/run.log"].metadata["sha256"])

	dst := filepath.Join(dir, "copy.log")
	down, err := c.Download(ctx, "transcripts/run.log", dst)
	require.NoError(t, err)
	require.Equal(t, up.SHA256, down.SHA256)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "U-Boot 2021.10\r\nVisionFive # ", string(got))
}

func TestClient_DownloadChecksumMismatch(t *testing.T) {
	fake := newFakeS3()
	fake.objects["t/run.log"] = object{body: []byte("tampered"), metadata: map[string]string{"sha256": "00"}}
	c := NewClientWithAPI(fake, "boot-logs")

	_, err := c.Download(context.Background(), "t/run.log", filepath.Join(t.TempDir(), "x.log"))
	require.ErrorContains(t, err, "checksum mismatch")
}

func TestClient_ListObjectsPages(t *testing.T) {
	fake := newFakeS3()
	for _, k := range []string{"t/a.log", "t/b.log", "t/c.log", "t/d.log", "t/e.log", "other/x.log"} {
		fake.objects[k] = object{body: []byte(k)}
	}
	c := NewClientWithAPI(fake, "boot-logs")

	objects, err := c.ListObjects(context.Background(), "t/")
	require.NoError(t, err)
	require.Len(t, objects, 5)
	require.Equal(t, "t/a.log", objects[0].Key)
	require.Equal(t, "t/e.log", objects[4].Key)
	require.Equal(t, int64(7), objects[0].Size)
}

func TestClient_Exists(t *testing.T) {
	fake := newFakeS3()
	fake.objects["t/a.log"] = object{}
	c := NewClientWithAPI(fake, "boot-logs")

	ok, err := c.Exists(context.Background(), "t/a.log")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Exists(context.Background(), "t/missing.log")
	require.NoError(t, err)
	require.False(t, ok)
}
