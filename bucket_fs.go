package filerelay

import (
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jszwec/s3fs/v2"
)

// NewBucketFS exposes a bucket as a read-only fs.FS, used to browse relayed objects.
func NewBucketFS(client *s3.Client, bucket string) fs.FS {
	return s3fs.New(client, bucket)
}
