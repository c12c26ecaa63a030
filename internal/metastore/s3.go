/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package metastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chronoshard/qcoord/internal/dataset"
)

func init() {
	BackendRegistry["s3"] = func(raw json.RawMessage) (Backend, error) {
		var cfg S3Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("metastore: invalid s3 config: %w", err)
		}
		return NewS3(cfg), nil
	}
}

// S3Config mirrors storage/persistence-s3.go's S3Factory fields — same
// access-key/region/endpoint/bucket/prefix knobs, since this is the same
// S3-compatible-object-store integration, just storing dataset schemas
// instead of column/log segments.
type S3Config struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	ForcePathStyle  bool   `json:"forcePathStyle"`
}

// S3 is an S3-backed metastore Backend: one JSON object per dataset, at
// <prefix>/<database>/<name>.json.
type S3 struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewS3 returns an S3 Backend lazily connecting on first use, exactly as
// S3Storage.ensureOpen defers client construction.
func NewS3(cfg S3Config) *S3 {
	return &S3{cfg: cfg}
}

func (b *S3) ensureOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if b.cfg.Region != "" {
		opts = append(opts, config.WithRegion(b.cfg.Region))
	}
	if b.cfg.AccessKeyID != "" && b.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.cfg.AccessKeyID, b.cfg.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("metastore: failed to load AWS config: %v", err))
	}

	var s3Opts []func(*s3.Options)
	if b.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(b.cfg.Endpoint) })
	}
	if b.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	b.client = s3.NewFromConfig(cfg, s3Opts...)
	b.opened = true
}

func (b *S3) key(ref dataset.Ref) string {
	pfx := strings.TrimSuffix(b.cfg.Prefix, "/")
	db := ref.Database
	if db == "" {
		db = "default"
	}
	if pfx == "" {
		return db + "/" + ref.Name + ".json"
	}
	return pfx + "/" + db + "/" + ref.Name + ".json"
}

func (b *S3) Load(ref dataset.Ref) (*dataset.Dataset, error) {
	b.ensureOpen()
	resp, err := b.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(ref)),
	})
	if err != nil {
		return nil, ErrNotFound
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var rec datasetRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec.toDataset(), nil
}

func (b *S3) Save(ref dataset.Ref, d *dataset.Dataset) error {
	b.ensureOpen()
	raw, err := json.Marshal(toRecord(d))
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(ref)),
		Body:   bytes.NewReader(raw),
	})
	return err
}

func (b *S3) Delete(ref dataset.Ref) error {
	b.ensureOpen()
	_, err := b.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(ref)),
	})
	return err
}

func (b *S3) List() ([]dataset.Ref, error) {
	b.ensureOpen()
	pfx := strings.TrimSuffix(b.cfg.Prefix, "/")
	if pfx != "" {
		pfx += "/"
	}

	var refs []dataset.Ref
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.cfg.Bucket),
		Prefix: aws.String(pfx),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			ref, ok := refFromKey(*obj.Key, pfx)
			if ok {
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}

func refFromKey(key, prefix string) (dataset.Ref, bool) {
	rest := strings.TrimPrefix(key, prefix)
	rest = strings.TrimSuffix(rest, ".json")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return dataset.Ref{}, false
	}
	db := parts[0]
	if db == "default" {
		db = ""
	}
	return dataset.Ref{Database: db, Name: parts[1]}, true
}
