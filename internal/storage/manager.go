// Package storage provides the top-level StorageManager that coordinates
// the two storage areas: the market cache and the recommendation audit.
package storage

import (
	"fmt"
	"path/filepath"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/storage/marketdb"
	"github.com/stockbuddy/advisor/internal/storage/recdb"
)

// Manager implements interfaces.StorageManager with two BadgerHold areas.
// The market area is a disposable cache; the audit area is the durable
// record of what the engine advised.
type Manager struct {
	dataPath string
	market   *marketdb.Store
	audit    *recdb.Store
	logger   *common.Logger
}

// NewManager opens both storage areas under the configured base path.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	base := config.Storage.Path
	marketPath := filepath.Join(base, "market")
	auditPath := filepath.Join(base, "audit")

	marketStore, err := marketdb.NewStore(logger, marketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create market cache: %w", err)
	}

	auditStore, err := recdb.NewStore(logger, auditPath)
	if err != nil {
		marketStore.Close()
		return nil, fmt.Errorf("failed to create audit store: %w", err)
	}

	logger.Info().
		Str("market", marketPath).
		Str("audit", auditPath).
		Msg("Storage manager initialized (2 areas)")

	return &Manager{
		dataPath: base,
		market:   marketStore,
		audit:    auditStore,
		logger:   logger,
	}, nil
}

func (m *Manager) MarketDataStorage() interfaces.MarketDataStorage {
	return m.market
}

func (m *Manager) RecommendationStorage() interfaces.RecommendationStorage {
	return m.audit
}

func (m *Manager) DataPath() string {
	return m.dataPath
}

func (m *Manager) Close() error {
	var firstErr error
	if err := m.market.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.audit.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
