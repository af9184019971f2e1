package blob

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const thumbMaxDim = 200

// Store uploads message attachments to S3 and returns public URLs. Image
// uploads also produce a JPEG thumbnail next to the original.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
}

type Upload struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url,omitempty"`
	Size     int64  `json:"size"`
}

func New(ctx context.Context, region, bucket string) (*Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		region:   region,
	}, nil
}

// Put uploads one attachment under a per-user key and returns its public
// URL. For images a thumbnail is generated best-effort; a thumbnail failure
// never fails the upload.
func (s *Store) Put(ctx context.Context, userID, filename, contentType string, data []byte) (*Upload, error) {
	key := userID + "/" + uuid.NewString() + "_" + filename
	if err := s.upload(ctx, key, contentType, data); err != nil {
		return nil, err
	}
	up := &Upload{
		Key:  key,
		URL:  s.publicURL(key),
		Size: int64(len(data)),
	}
	if strings.HasPrefix(contentType, "image/") {
		thumbKey := key + "_thumb.jpg"
		if thumb, err := thumbnail(data); err == nil {
			if err := s.upload(ctx, thumbKey, "image/jpeg", thumb); err == nil {
				up.ThumbURL = s.publicURL(thumbKey)
			}
		}
	}
	return up, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *Store) upload(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *Store) publicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, url.PathEscape(key))
}

func thumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	small := imaging.Fit(img, thumbMaxDim, thumbMaxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
