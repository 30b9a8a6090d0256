// Package archive stores signed, zstd-compressed race resolution records in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/race"
)

var ErrBadSignature = errors.New("archived record signature mismatch")

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client. A non-empty endpoint targets an
// S3-compatible store with path-style addressing.
func NewS3Client(ctx context.Context, endpoint, region, accessKeyID, secretKey string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// KeyStore resolves signing keys by id.
type KeyStore interface {
	CurrentKey() (string, []byte, error)
	GetKey(keyID string) ([]byte, error)
}

// Archive writes and reads race audit records.
type Archive struct {
	client ObjectAPI
	bucket string
	prefix string
	keys   KeyStore
	logger zerolog.Logger
}

func New(client ObjectAPI, bucket, prefix string, keys KeyStore, logger zerolog.Logger) *Archive {
	return &Archive{
		client: client,
		bucket: bucket,
		prefix: prefix,
		keys:   keys,
		logger: logger.With().Str("service", "archive").Logger(),
	}
}

// ObjectKey returns <prefix>/<seasonId>/<raceId>.json.zst.
func (a *Archive) ObjectKey(seasonID, raceID uuid.UUID) string {
	return path.Join(a.prefix, seasonID.String(), raceID.String()+".json.zst")
}

// Store signs rec in place with the current key and uploads it.
func (a *Archive) Store(ctx context.Context, rec *race.AuditRecord) error {
	keyID, signKey, err := a.keys.CurrentKey()
	if err != nil {
		return err
	}
	rec.KeyID = keyID
	sig, err := race.SignAuditRecord(rec, signKey)
	if err != nil {
		return fmt.Errorf("sign record: %w", err)
	}
	rec.Signature = sig

	body, err := Encode(rec)
	if err != nil {
		return err
	}
	key := a.ObjectKey(rec.SeasonID, rec.RaceID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("zstd"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	a.logger.Info().Str("race_id", rec.RaceID.String()).Str("key", key).Str("key_id", keyID).Msg("race record archived")
	return nil
}

// Fetch downloads a record and verifies its signature against the key it
// was signed with.
func (a *Archive) Fetch(ctx context.Context, seasonID, raceID uuid.UUID) (*race.AuditRecord, error) {
	key := a.ObjectKey(seasonID, raceID)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	rec, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	signKey, err := a.keys.GetKey(rec.KeyID)
	if err != nil {
		return nil, err
	}
	ok, err := race.VerifyAuditRecordSignature(rec, signKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBadSignature
	}
	return rec, nil
}

// Encode serialises and compresses a record.
func Encode(rec *race.AuditRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// Decode decompresses and parses a record.
func Decode(raw []byte) (*race.AuditRecord, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress record: %w", err)
	}
	var rec race.AuditRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return &rec, nil
}
