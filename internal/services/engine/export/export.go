// Package export snapshots community member state to S3-compatible object
// storage as zstd-compressed JSONL.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
)

const (
	defaultRegion = "us-east-1"
	defaultPrefix = "exports"
	contentType   = "application/zstd"
	keyTimeLayout = "20060102T150405Z"
)

// ObjectPutter is the subset of the S3 client the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes the target bucket. Empty credentials fall back to the
// default AWS credential chain.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// NewS3Client builds an S3 client for cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Row is one exported member line.
type Row struct {
	CommunityID    string     `json:"community_id"`
	MemberID       string     `json:"member_id"`
	Mood           float64    `json:"mood"`
	Energy         float64    `json:"energy"`
	Activity       float64    `json:"activity"`
	LastRoleUpdate *time.Time `json:"last_role_update,omitempty"`
	LastChaosEvent *time.Time `json:"last_chaos_event,omitempty"`
	ChaosRole      string     `json:"chaos_role,omitempty"`
	ChaosExpires   *time.Time `json:"chaos_expires,omitempty"`
	AppliedRoles   []string   `json:"applied_roles,omitempty"`
	VoiceMinutes   float64    `json:"voice_minutes"`
	OnlineMinutes  float64    `json:"online_minutes"`
	PeakMood       float64    `json:"peak_mood"`
	PeakEnergy     float64    `json:"peak_energy"`
	PeakActivity   float64    `json:"peak_activity"`
}

// RowFromRecord flattens a member record.
func RowFromRecord(record storage.MemberRecord) Row {
	state := record.State
	progress := record.Progress
	return Row{
		CommunityID:    state.CommunityID,
		MemberID:       state.MemberID,
		Mood:           state.Mood,
		Energy:         state.Energy,
		Activity:       state.Activity,
		LastRoleUpdate: optionalTime(state.LastRoleUpdate),
		LastChaosEvent: optionalTime(state.LastChaosEvent),
		ChaosRole:      state.ChaosRole,
		ChaosExpires:   optionalTime(state.ChaosExpires),
		AppliedRoles:   state.AppliedRoles,
		VoiceMinutes:   progress.VoiceMinutes,
		OnlineMinutes:  progress.OnlineMinutes,
		PeakMood:       progress.PeakMood,
		PeakEnergy:     progress.PeakEnergy,
		PeakActivity:   progress.PeakActivity,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// Result describes one uploaded snapshot.
type Result struct {
	Key     string
	Members int
	Bytes   int
}

// Exporter uploads member snapshots.
type Exporter struct {
	store  storage.MemberStore
	putter ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewExporter builds an exporter writing under prefix in bucket.
func NewExporter(store storage.MemberStore, putter ObjectPutter, bucket, prefix string) (*Exporter, error) {
	if store == nil {
		return nil, errors.New("member store is required")
	}
	if putter == nil {
		return nil, errors.New("object putter is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Exporter{store: store, putter: putter, bucket: bucket, prefix: prefix, now: time.Now}, nil
}

// Key returns the object key for a community snapshot taken at t.
func (e *Exporter) Key(communityID string, t time.Time) string {
	return path.Join(e.prefix, communityID, t.UTC().Format(keyTimeLayout)+".jsonl.zst")
}

// ExportCommunity uploads every member record of one community.
func (e *Exporter) ExportCommunity(ctx context.Context, communityID string) (Result, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return Result{}, errors.New("community id is required")
	}
	records, err := e.store.ListMembers(ctx, communityID)
	if err != nil {
		return Result{}, fmt.Errorf("list members: %w", err)
	}
	body, err := Encode(records)
	if err != nil {
		return Result{}, err
	}
	key := e.Key(communityID, e.now())
	if _, err := e.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}); err != nil {
		return Result{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Result{Key: key, Members: len(records), Bytes: len(body)}, nil
}

// ExportAll uploads one snapshot per known community. It stops at the first
// failure and returns what was uploaded so far.
func (e *Exporter) ExportAll(ctx context.Context) ([]Result, error) {
	communities, err := e.store.ListCommunities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	results := make([]Result, 0, len(communities))
	for _, communityID := range communities {
		result, err := e.ExportCommunity(ctx, communityID)
		if err != nil {
			return results, fmt.Errorf("export community %s: %w", communityID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Encode renders records as zstd-compressed JSONL.
func Encode(records []storage.MemberRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	jsonEnc := json.NewEncoder(enc)
	for _, record := range records {
		if err := jsonEnc.Encode(RowFromRecord(record)); err != nil {
			_ = enc.Close()
			return nil, fmt.Errorf("encode member %s: %w", record.State.MemberID, err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close zstd encoder: %w", err)
	}
	return buf.Bytes(), nil
}
