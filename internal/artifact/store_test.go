package artifact

import (
	"testing"

	"github.com/weblinq/gateway/internal/config"
)

func TestNewRequiresS3Endpoint(t *testing.T) {
	cfg := &config.Config{S3Endpoint: "", S3Bucket: "artifacts"}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error when S3_ENDPOINT is unset")
	}
}

func TestNewSucceedsWithEndpointConfigured(t *testing.T) {
	cfg := &config.Config{
		S3Endpoint:  "localhost:9000",
		S3Bucket:    "artifacts",
		S3AccessKey: "minioadmin",
		S3SecretKey: "minioadmin",
		S3UseSSL:    false,
	}
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.bucket != "artifacts" {
		t.Fatalf("bucket = %q, want artifacts", store.bucket)
	}
}
