package awsutil

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
)

// DocumentArchive stores original uploaded documents.
type DocumentArchive interface {
	PutDocument(ctx context.Context, key, contentType string, data []byte) error
}

// S3API is the subset of the S3 client we use.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Archive struct {
	client S3API
	bucket string
}

// NewS3Archive creates a DocumentArchive writing to the given bucket.
func NewS3Archive(client S3API, bucket string) DocumentArchive {
	return &s3Archive{client: client, bucket: bucket}
}

func (a *s3Archive) PutDocument(ctx context.Context, key, contentType string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Body:          bytes.NewReader(data),
	})
	if err != nil {
		return eris.Wrapf(err, "put object %s", key)
	}
	return nil
}
