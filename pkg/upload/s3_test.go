package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vango-dev/domwire/pkg/upload"
)

type memObject struct {
	data        []byte
	contentType string
	meta        map[string]string
	modified    time.Time
}

// memS3 is an in-memory S3API.
type memS3 struct {
	mu      sync.Mutex
	objects map[string]*memObject
}

func newMemS3() *memS3 {
	return &memS3{objects: make(map[string]*memObject)}
}

var errNoSuchKey = errors.New("NoSuchKey")

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Key)] = &memObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		meta:        in.Metadata,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) get(key *string) (*memObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[aws.ToString(key)]
	if !ok {
		return nil, errNoSuchKey
	}
	return obj, nil
}

func (m *memS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, err := m.get(in.Key)
	if err != nil {
		return nil, err
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.data))),
		Metadata:      obj.meta,
	}, nil
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, err := m.get(in.Key)
	if err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (m *memS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key, obj := range m.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key),
				LastModified: aws.Time(obj.modified),
			})
		}
	}
	return out, nil
}

func (m *memS3) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://s3.test/" + aws.ToString(in.Key)}, nil
}

func TestS3Store_SaveAndClaim(t *testing.T) {
	ctx := context.Background()
	api := newMemS3()
	store := upload.NewS3StoreWithAPI(api, "bucket", "uploads/", 0).WithPresigner(fakePresigner{})

	id, err := store.Save(ctx, "photo.png", "image/png", 3, strings.NewReader("png"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	file, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if file.Filename != "photo.png" || file.ContentType != "image/png" || file.Size != 3 {
		t.Errorf("file = %+v", file)
	}
	if file.URL != "https://s3.test/uploads/"+id {
		t.Errorf("URL = %q", file.URL)
	}
	data, _ := io.ReadAll(file.Reader)
	if string(data) != "png" {
		t.Errorf("content = %q", data)
	}

	if err := file.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if api.len() != 0 {
		t.Errorf("object not deleted after close")
	}
	if _, err := store.Claim(ctx, id); err != upload.ErrNotFound {
		t.Errorf("second Claim err = %v, want ErrNotFound", err)
	}
}

func TestS3Store_SizeLimit(t *testing.T) {
	store := upload.NewS3StoreWithAPI(newMemS3(), "bucket", "", 4)
	if _, err := store.Save(context.Background(), "a", "", 2, strings.NewReader("123456")); err != upload.ErrTooLarge {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestS3Store_ClaimRejectsForeignKeys(t *testing.T) {
	store := upload.NewS3StoreWithAPI(newMemS3(), "bucket", "", 0)
	if _, err := store.Claim(context.Background(), "../secret"); err != upload.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestS3Store_Cleanup(t *testing.T) {
	ctx := context.Background()
	api := newMemS3()
	store := upload.NewS3StoreWithAPI(api, "bucket", "uploads/", 0)

	if _, err := store.Save(ctx, "a", "text/plain", 1, strings.NewReader("a")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	api.objects["other/keep"] = &memObject{modified: time.Now().Add(-time.Hour)}

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if api.len() != 2 {
		t.Fatalf("objects = %d, want 2", api.len())
	}

	time.Sleep(5 * time.Millisecond)
	if err := store.Cleanup(ctx, time.Millisecond); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if api.len() != 1 {
		t.Fatalf("objects = %d, want 1 (outside prefix kept)", api.len())
	}
}
