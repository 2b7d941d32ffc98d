package receipt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		ctx     context.Context
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			key  string
			data []byte
			err  error
		)

		BeforeEach(func() {
			key = "1-123_test.jpg"
			data = []byte("test file content")
		})

		JustBeforeEach(func() {
			err = storage.Save(ctx, key, data, "image/jpeg")
		})

		When("saving succeeds", func() {
			It("should save the file to disk", func() {
				Expect(err).NotTo(HaveOccurred())
				content, readErr := os.ReadFile(filepath.Join(tmpDir, key))
				Expect(readErr).NotTo(HaveOccurred())
				Expect(content).To(Equal(data))
			})
		})

		When("the key escapes the directory", func() {
			BeforeEach(func() {
				key = "../outside.jpg"
			})

			It("should refuse", func() {
				Expect(err).To(HaveOccurred())
				_, statErr := os.Stat(filepath.Join(tmpDir, "..", "outside.jpg"))
				Expect(os.IsNotExist(statErr)).To(BeTrue())
			})
		})
	})

	Describe("Get", func() {
		It("should return saved data", func() {
			Expect(storage.Save(ctx, "k.png", []byte("abc"), "image/png")).To(Succeed())
			data, err := storage.Get(ctx, "k.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("abc")))
		})

		It("should return ErrFileNotFound for a missing key", func() {
			_, err := storage.Get(ctx, "missing.png")
			Expect(err).To(MatchError(ErrFileNotFound))
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			Expect(storage.Save(ctx, "k.png", []byte("abc"), "image/png")).To(Succeed())
			Expect(storage.Delete(ctx, "k.png")).To(Succeed())
			_, err := storage.Get(ctx, "k.png")
			Expect(err).To(MatchError(ErrFileNotFound))
		})

		It("should report a missing file", func() {
			Expect(storage.Delete(ctx, "missing.png")).To(MatchError(ErrFileNotFound))
		})
	})
})

// fakeS3 is an in-memory s3API
type fakeS3 struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.contentTypes[*in.Bucket+"/"+*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

var _ = Describe("S3Storage", func() {
	var (
		ctx     context.Context
		client  *fakeS3
		storage *S3Storage
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = newFakeS3()
		storage = newS3Storage(client, "receipts")
	})

	It("should put objects into the bucket with their content type", func() {
		Expect(storage.Save(ctx, "1-1_r.png", []byte("img"), "image/png")).To(Succeed())
		Expect(client.objects).To(HaveKeyWithValue("receipts/1-1_r.png", []byte("img")))
		Expect(client.contentTypes).To(HaveKeyWithValue("receipts/1-1_r.png", "image/png"))
	})

	It("should read objects back", func() {
		Expect(storage.Save(ctx, "1-1_r.png", []byte("img"), "image/png")).To(Succeed())
		data, err := storage.Get(ctx, "1-1_r.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("img")))
	})

	It("should map NoSuchKey to ErrFileNotFound", func() {
		_, err := storage.Get(ctx, "nope")
		Expect(err).To(MatchError(ErrFileNotFound))
	})

	It("should wrap upload failures", func() {
		client.putErr = errors.New("access denied")
		err := storage.Save(ctx, "1-1_r.png", []byte("img"), "image/png")
		Expect(err).To(MatchError(ContainSubstring("access denied")))
	})

	It("should delete objects", func() {
		Expect(storage.Save(ctx, "1-1_r.png", []byte("img"), "image/png")).To(Succeed())
		Expect(storage.Delete(ctx, "1-1_r.png")).To(Succeed())
		Expect(client.objects).To(BeEmpty())
	})

	It("should require a bucket", func() {
		_, err := NewS3Storage(ctx, S3Config{Region: "us-east-1"})
		Expect(err).To(MatchError(ContainSubstring("bucket")))
	})
})
