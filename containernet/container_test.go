package containernet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExternalEntrypointResolvesAndMounts(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "tool")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}

	c := New("svc", FromNameTag("alpine:latest"))
	c, err := c.ExternalEntrypoint(bin, "--flag")
	if err != nil {
		t.Fatalf("ExternalEntrypoint: %v", err)
	}
	if len(c.Volumes) != 1 {
		t.Fatalf("expected one volume mount, got %v", c.Volumes)
	}
	if c.Volumes[0].HostPath == "" || c.Volumes[0].ContainerPath == "" {
		t.Fatalf("unexpected volume mount %+v", c.Volumes[0])
	}
	if c.EntrypointFile != c.Volumes[0].ContainerPath {
		t.Fatalf("entrypoint file %q should match mounted container path %q", c.EntrypointFile, c.Volumes[0].ContainerPath)
	}
	if len(c.EntrypointArgs) != 1 || c.EntrypointArgs[0] != "--flag" {
		t.Fatalf("entrypoint args = %v", c.EntrypointArgs)
	}
}

func TestExternalEntrypointMissingBinaryFails(t *testing.T) {
	c := New("svc", FromNameTag("alpine:latest"))
	if _, err := c.ExternalEntrypoint(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestPrecheckRejectsMissingDockerfilePath(t *testing.T) {
	c := New("svc", FromPath(filepath.Join(t.TempDir(), "no.Dockerfile")))
	if err := c.Precheck(); err == nil {
		t.Fatal("expected error for missing dockerfile path")
	}
}

func TestPrecheckRejectsContentsWithoutWritePath(t *testing.T) {
	c := New("svc", FromContents("FROM alpine\n"))
	if err := c.Precheck(); err == nil {
		t.Fatal("expected error for Contents dockerfile with no write path")
	}
}

func TestPrecheckRejectsMissingVolumeHostPath(t *testing.T) {
	c := New("svc", FromNameTag("alpine:latest")).
		WithVolume(filepath.Join(t.TempDir(), "missing"), "/data")
	if err := c.Precheck(); err == nil {
		t.Fatal("expected error for missing volume host path")
	}
}

func TestImageRefPrefersBuildTag(t *testing.T) {
	c := New("svc", FromNameTag("alpine:latest")).WithBuildTag("orchestra_svc_abc")
	ref, err := c.imageRef()
	if err != nil {
		t.Fatalf("imageRef: %v", err)
	}
	if ref != "orchestra_svc_abc" {
		t.Fatalf("imageRef = %q, want build tag", ref)
	}
}

func TestImageRefFallsBackToNameTag(t *testing.T) {
	c := New("svc", FromNameTag("alpine:latest"))
	ref, err := c.imageRef()
	if err != nil {
		t.Fatalf("imageRef: %v", err)
	}
	if ref != "alpine:latest" {
		t.Fatalf("imageRef = %q, want alpine:latest", ref)
	}
}

func TestImageRefFailsWithoutBuildTagOrNameTag(t *testing.T) {
	c := New("svc", FromPath("/some/Dockerfile"))
	if _, err := c.imageRef(); err == nil {
		t.Fatal("expected error: no build tag assigned yet")
	}
}

func TestContainerNameDefaultsToLogicalName(t *testing.T) {
	c := New("svc", FromNameTag("alpine:latest"))
	if c.containerName() != "svc" {
		t.Fatalf("containerName() = %q", c.containerName())
	}
	if c.hostname() != "svc" {
		t.Fatalf("hostname() = %q", c.hostname())
	}
	c = c.WithContainerName("svc-1")
	if c.hostname() != "svc-1" {
		t.Fatalf("hostname() should follow container name override, got %q", c.hostname())
	}
}
