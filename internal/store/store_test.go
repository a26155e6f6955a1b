package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestOpenAppliesMigrationsAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "bookkeeping.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	netID := uuid.NewString()
	if err := s.InsertNetwork(ctx, InsertNetworkParams{ID: netID, Name: "demo", UUID: netID}); err != nil {
		t.Fatalf("InsertNetwork: %v", err)
	}

	containerID := uuid.NewString()
	if err := s.InsertContainer(ctx, InsertContainerParams{
		ID: containerID, NetworkID: netID, Name: "svc", Image: "alpine:latest",
	}); err != nil {
		t.Fatalf("InsertContainer: %v", err)
	}

	if err := s.MarkContainerExited(ctx, MarkContainerExitedParams{ID: containerID, ExitCode: 0, Success: true}); err != nil {
		t.Fatalf("MarkContainerExited: %v", err)
	}
	if err := s.MarkNetworkTerminated(ctx, netID); err != nil {
		t.Fatalf("MarkNetworkTerminated: %v", err)
	}

	networks, err := s.ListNetworks(ctx)
	if err != nil {
		t.Fatalf("ListNetworks: %v", err)
	}
	if len(networks) != 1 || networks[0].ID != netID {
		t.Fatalf("networks = %+v", networks)
	}
	if !networks[0].TerminatedAt.Valid {
		t.Fatal("expected terminated_at to be set")
	}

	containers, err := s.ListContainersByNetwork(ctx, netID)
	if err != nil {
		t.Fatalf("ListContainersByNetwork: %v", err)
	}
	if len(containers) != 1 || containers[0].ID != containerID {
		t.Fatalf("containers = %+v", containers)
	}
	if !containers[0].Success.Valid || !containers[0].Success.Bool {
		t.Fatalf("expected success=true, got %+v", containers[0].Success)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookkeeping.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open (re-applying migrations) should not fail: %v", err)
	}
	defer s2.Close()
}
