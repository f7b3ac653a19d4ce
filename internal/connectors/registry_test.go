package connectors

import (
	"context"
	"errors"
	"testing"

	"northstar/internal/domain"
)

type stubStore struct {
	list []domain.TenantConnector
	err  error
}

func (s *stubStore) ListConnectors(context.Context, string) ([]domain.TenantConnector, error) {
	return s.list, s.err
}

func TestGetAllNeverNil(t *testing.T) {
	r := NewRegistry(&stubStore{}, nil)
	got := r.GetAll(context.Background(), "t-test")
	if got == nil {
		t.Fatal("nil slice")
	}
	if len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestGetAllEmptyOnStoreFailure(t *testing.T) {
	r := NewRegistry(&stubStore{err: errors.New("disk gone")}, nil)
	got := r.GetAll(context.Background(), "t-test")
	if got == nil || len(got) != 0 {
		t.Fatalf("store failure must yield empty slice, got %v", got)
	}
}

func TestGetAllServesCacheOnFailure(t *testing.T) {
	store := &stubStore{list: []domain.TenantConnector{{ID: "c1", Status: "active"}}}
	r := NewRegistry(store, nil)
	if got := r.GetAll(context.Background(), "t-test"); len(got) != 1 {
		t.Fatalf("warmup failed: %v", got)
	}
	store.err = errors.New("transient")
	got := r.GetAll(context.Background(), "t-test")
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("cache not served: %v", got)
	}
}

func TestInvalidateDropsCache(t *testing.T) {
	store := &stubStore{list: []domain.TenantConnector{{ID: "c1"}}}
	r := NewRegistry(store, nil)
	r.GetAll(context.Background(), "t-test")
	r.Invalidate("t-test")
	store.err = errors.New("down")
	if got := r.GetAll(context.Background(), "t-test"); len(got) != 0 {
		t.Fatalf("invalidated cache still served: %v", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]domain.TenantConnector{
		{Status: "active"},
		{Status: "active"},
		{Status: "error"},
		{Status: "inactive"},
	})
	if s.Total != 4 || s.Synced != 2 || s.Failed != 1 || s.Skipped != 1 {
		t.Fatalf("got %+v", s)
	}
}

func TestStatusBadge(t *testing.T) {
	cases := map[string]Badge{
		"active":   {Label: "Connected", Color: "green"},
		"inactive": {Label: "Paused", Color: "gray"},
		"error":    {Label: "Error", Color: "red"},
		"syncing":  {Label: "Syncing", Color: "blue"},
		"testing":  {Label: "Testing", Color: "yellow"},
	}
	for status, want := range cases {
		if got := StatusBadge(status); got != want {
			t.Fatalf("%s: got %+v", status, got)
		}
	}
}

func TestStatusBadgeUnknownIsNeutral(t *testing.T) {
	got := StatusBadge("provisioning")
	if got.Color != "neutral" || got.Label != "provisioning" {
		t.Fatalf("got %+v", got)
	}
}
