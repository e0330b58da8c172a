package blob

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"workspacemodel/internal/config"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  config.Blob
		want Driver
	}{
		{"fs", config.Blob{FSRoot: filepath.Join(t.TempDir(), "files")}, DriverFilesystem},
		{"memory", config.Blob{Driver: string(DriverMemory)}, DriverMemory},
		{"s3", config.Blob{Driver: string(DriverS3), S3: config.S3{Bucket: "bkt", Region: "eu-west-1", AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}}, DriverS3},
	}
	for _, tc := range cases {
		s, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("%s: open: %v", tc.name, err)
		}
		if s.Driver() != tc.want {
			t.Fatalf("%s: driver = %s, want %s", tc.name, s.Driver(), tc.want)
		}
	}

	if _, err := Open(ctx, config.Blob{Driver: string(DriverS3)}); err == nil {
		t.Fatalf("expected error for s3 without bucket")
	}
	if _, err := Open(ctx, config.Blob{Driver: "ftp"}); err == nil || !strings.Contains(err.Error(), "unknown blob driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
