// Package s3io is the S3-backed streamio adapter, grounded on the
// teacher's own object-store content backend
// (pkg/content/store/s3/s3_read.go): range GetObject reads for a
// seekable Source, and the aws-sdk-go-v2 s3manager streaming uploader
// for the Sink side, so the transfer engine never has to buffer a whole
// object before it can start writing it to S3.
package s3io

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hors-sit/pesitd/internal/streamio"
)

// Source reads an S3 object as a transfer source, supporting Seek by
// reopening the GetObject stream with a byte-range header — the same
// range-request idiom the teacher's S3ContentStore.ReadAt uses.
type Source struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string

	size   int64
	offset int64
	body   io.ReadCloser
}

// OpenSource HEADs the object for its size, then opens it for reading
// from the start.
func OpenSource(ctx context.Context, client *s3.Client, bucket, key string) (*Source, error) {
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3io: head %s/%s: %w", bucket, key, err)
	}
	s := &Source{ctx: ctx, client: client, bucket: bucket, key: key, size: aws.ToInt64(head.ContentLength)}
	if err := s.reopen(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) reopen() error {
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
	rangeStr := fmt.Sprintf("bytes=%d-", s.offset)
	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(rangeStr),
	})
	if err != nil {
		return fmt.Errorf("s3io: get %s/%s at offset %d: %w", s.bucket, s.key, s.offset, err)
	}
	s.body = out.Body
	return nil
}

func (s *Source) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	s.offset += int64(n)
	return n, err
}

// Seek only supports io.SeekStart/io.SeekCurrent semantics meaningful for
// resume: jumping to an absolute offset before the first Read of a
// resumed transfer.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.offset = offset
	case io.SeekCurrent:
		s.offset += offset
	default:
		return 0, fmt.Errorf("s3io: unsupported seek whence %d", whence)
	}
	if err := s.reopen(); err != nil {
		return 0, err
	}
	return s.offset, nil
}

func (s *Source) Size() (int64, bool) { return s.size, true }

func (s *Source) Close() error {
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}

var _ streamio.ResumableSource = (*Source)(nil)

// Sink streams writes into an S3 object via the multipart upload
// manager, so the engine never has to know the final size up front.
type Sink struct {
	ctx      context.Context
	uploader *manager.Uploader
	bucket   string
	key      string

	pw   *io.PipeWriter
	done chan error
}

// CreateSink starts a streaming multipart upload to bucket/key. Writes to
// the returned Sink are piped directly into the upload; Close waits for
// the upload to finish and reports its error.
func CreateSink(ctx context.Context, client *s3.Client, bucket, key string) *Sink {
	pr, pw := io.Pipe()
	uploader := manager.NewUploader(client)
	sink := &Sink{ctx: ctx, uploader: uploader, bucket: bucket, key: key, pw: pw, done: make(chan error, 1)}

	go func() {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		pr.CloseWithError(err)
		sink.done <- err
	}()

	return sink
}

func (s *Sink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *Sink) Close() error {
	if err := s.pw.Close(); err != nil {
		return err
	}
	return <-s.done
}

var _ streamio.Sink = (*Sink)(nil)
