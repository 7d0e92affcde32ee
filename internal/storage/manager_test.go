package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = t.TempDir()

	mgr, err := NewManager(common.NewSilentLogger(), cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestManager_CreatesBothAreas(t *testing.T) {
	mgr := newTestManager(t)

	for _, area := range []string{"market", "audit"} {
		path := filepath.Join(mgr.DataPath(), area)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s area at %s: %v", area, path, err)
		}
	}
}

func TestManager_FacadesWork(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	market := mgr.MarketDataStorage()
	if err := market.SaveSnapshot(ctx, &models.SnapshotRecord{
		Symbol:   "AAPL",
		Snapshot: models.MarketSnapshot{Symbol: "AAPL", CurrentPrice: 100},
	}); err != nil {
		t.Fatalf("SaveSnapshot via facade: %v", err)
	}
	if _, err := market.GetSnapshot(ctx, "AAPL"); err != nil {
		t.Errorf("GetSnapshot via facade: %v", err)
	}

	audit := mgr.RecommendationStorage()
	if err := audit.SaveReview(ctx, &models.PortfolioReview{CycleID: "c1"}); err != nil {
		t.Fatalf("SaveReview via facade: %v", err)
	}
	if _, err := audit.LatestReview(ctx); err != nil {
		t.Errorf("LatestReview via facade: %v", err)
	}
}

func TestManager_CloseIsIdempotentPath(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = t.TempDir()

	mgr, err := NewManager(common.NewSilentLogger(), cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening the same path must work after a clean close
	mgr2, err := NewManager(common.NewSilentLogger(), cfg)
	if err != nil {
		t.Fatalf("NewManager reopen: %v", err)
	}
	mgr2.Close()
}
