// Package objectstore adapts S3-compatible object storage to the unified
// provider contract. Buckets have no real folders: folders are modeled as
// common key prefixes under "/", and the root is the empty prefix. The
// credential record carries a static key pair instead of OAuth tokens
// (access key ID in AccessToken, secret key in RefreshToken).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

// listPageSize caps keys per ListObjectsV2 page.
const listPageSize = 1000

// presignExpiry is how long a resolved open link stays valid.
const presignExpiry = 15 * time.Minute

// Config locates the bucket this adapter browses. Key material lives in
// the credential record, not here.
type Config struct {
	Endpoint string // empty for AWS proper; set for MinIO and friends
	Region   string
	Bucket   string
}

// Adapter implements provider.Adapter for S3-compatible storage.
type Adapter struct {
	cfg    Config
	logger *slog.Logger

	// newClient is stubbed in tests to avoid real AWS config resolution.
	newClient func(ctx context.Context, cred *credstore.Record) (*s3.Client, error)
}

// New creates an object-store adapter for one bucket.
func New(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{cfg: cfg, logger: logger}
	a.newClient = a.buildClient

	return a
}

// Service implements provider.Adapter.
func (a *Adapter) Service() item.Service {
	return item.ServiceObjectStore
}

// buildClient constructs an S3 client with the record's static key pair.
func (a *Adapter) buildClient(ctx context.Context, cred *credstore.Record) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(a.cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cred.AccessToken, cred.RefreshToken, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if a.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return client, nil
}

// ListChildren implements provider.Adapter. The folder ID is a key
// prefix; the unified root maps to the empty prefix.
func (a *Adapter) ListChildren(
	ctx context.Context, cred *credstore.Record, accountID, folderID string,
) ([]item.Item, error) {
	client, err := a.newClient(ctx, cred)
	if err != nil {
		return nil, err
	}

	prefix := folderPrefix(folderID)

	var (
		items []item.Item
		token *string
	)

	for {
		out, listErr := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.cfg.Bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			MaxKeys:           aws.Int32(listPageSize),
			ContinuationToken: token,
		})
		if listErr != nil {
			return nil, a.classify(accountID, listErr)
		}

		for _, cp := range out.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}

			items = append(items, a.folderItem(accountID, prefix, *cp.Prefix))
		}

		for _, obj := range out.Contents {
			if obj.Key == nil || *obj.Key == prefix {
				// The prefix itself shows up as a zero-byte marker object
				// in buckets written by console "create folder".
				continue
			}

			items = append(items, a.fileItem(accountID, prefix, obj))
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}

		token = out.NextContinuationToken
	}

	a.logger.Debug("listed bucket prefix",
		slog.String("account_id", accountID),
		slog.String("prefix", prefix),
		slog.Int("count", len(items)),
	)

	return items, nil
}

// Search implements provider.Adapter. Object storage has no server-side
// content search; the closest native capability is paging the bucket and
// matching key names, which is what this does.
func (a *Adapter) Search(
	ctx context.Context, cred *credstore.Record, accountID, query string,
) ([]item.Item, error) {
	client, err := a.newClient(ctx, cred)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)

	var (
		items []item.Item
		token *string
	)

	for {
		out, listErr := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.cfg.Bucket),
			MaxKeys:           aws.Int32(listPageSize),
			ContinuationToken: token,
		})
		if listErr != nil {
			return nil, a.classify(accountID, listErr)
		}

		for _, obj := range out.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}

			name := baseName(*obj.Key)
			if !strings.Contains(strings.ToLower(name), needle) {
				continue
			}

			items = append(items, a.fileItem(accountID, parentPrefix(*obj.Key), obj))
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}

		token = out.NextContinuationToken
	}

	return items, nil
}

// ResolveOpenLink implements provider.Adapter with a presigned GET URL.
func (a *Adapter) ResolveOpenLink(
	ctx context.Context, cred *credstore.Record, accountID, itemID string,
) (string, error) {
	client, err := a.newClient(ctx, cred)
	if err != nil {
		return "", err
	}

	presigner := s3.NewPresignClient(client)

	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(itemID),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", a.classify(accountID, err)
	}

	return req.URL, nil
}

// CurrentAccount implements provider.Adapter. Buckets have no userinfo
// endpoint; HeadBucket validates the key pair and the identity is the
// access key labeled with the bucket.
func (a *Adapter) CurrentAccount(ctx context.Context, cred *credstore.Record) (provider.Identity, error) {
	client, err := a.newClient(ctx, cred)
	if err != nil {
		return provider.Identity{}, err
	}

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.cfg.Bucket)})
	if err != nil {
		return provider.Identity{}, a.classify("", err)
	}

	return provider.Identity{
		ID:   cred.AccessToken,
		Name: a.cfg.Bucket,
	}, nil
}

// folderItem builds a folder from a common prefix.
func (a *Adapter) folderItem(accountID, parent, prefix string) item.Item {
	return item.Item{
		ID:         prefix,
		Name:       baseName(strings.TrimSuffix(prefix, "/")),
		Kind:       item.KindFolder,
		Service:    item.ServiceObjectStore,
		Account:    accountID,
		ParentID:   parentID(parent),
		Path:       prefix,
		ChildCount: item.ChildCountUnknown,
	}
}

// fileItem builds a file from an object listing entry.
func (a *Adapter) fileItem(accountID, parent string, obj types.Object) item.Item {
	it := item.Item{
		ID:       *obj.Key,
		Name:     baseName(*obj.Key),
		Kind:     item.KindFile,
		Service:  item.ServiceObjectStore,
		Account:  accountID,
		ParentID: parentID(parent),
		Path:     *obj.Key,
	}

	if obj.Size != nil {
		it.SizeKB = item.KBFromBytes(*obj.Size)
	}

	if obj.LastModified != nil {
		it.ModifiedAt = *obj.LastModified
	}

	return it
}

// classify maps AWS SDK errors onto the failure taxonomy.
func (a *Adapter) classify(accountID string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		sentinel := provider.ErrTransient

		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			sentinel = provider.ErrNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			sentinel = provider.ErrUnauthorized
		case "SlowDown", "TooManyRequests":
			sentinel = provider.ErrRateLimited
		}

		return &provider.CallError{
			Service: item.ServiceObjectStore,
			Account: accountID,
			Message: apiErr.ErrorMessage(),
			Err:     sentinel,
		}
	}

	return &provider.CallError{
		Service: item.ServiceObjectStore,
		Account: accountID,
		Message: err.Error(),
		Err:     provider.ErrTransient,
	}
}

// folderPrefix maps the unified folder ID to a key prefix.
func folderPrefix(folderID string) string {
	if folderID == item.RootFolderID || folderID == "" {
		return ""
	}

	if !strings.HasSuffix(folderID, "/") {
		return folderID + "/"
	}

	return folderID
}

// parentID maps a prefix back to the unified parent folder ID.
func parentID(prefix string) string {
	if prefix == "" {
		return ""
	}

	return prefix
}

// baseName returns the last path segment of a key.
func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}

	return key
}

// parentPrefix returns the prefix containing a key.
func parentPrefix(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i+1]
	}

	return ""
}
