package configstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gateway/multiapi/internal/keymanager"
	"github.com/gateway/multiapi/internal/router"
	"github.com/gateway/multiapi/model"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Provider{}))
	model.DB = db
}

func TestLoadReturnsDefaultSnapshotBeforeReload(t *testing.T) {
	s := New()
	snap := s.Load()
	require.Equal(t, router.CostFirst, snap.Strategy)
	require.Empty(t, snap.Providers)
}

func TestReloadPublishesNewSnapshotWithIncrementedVersion(t *testing.T) {
	setupTestDB(t)
	s := New()

	require.NoError(t, model.DB.Create(&model.Provider{Name: "p1", BaseURL: "https://x", Status: model.ProviderStatusEnabled}).Error)

	require.NoError(t, s.Reload())
	snap := s.Load()
	require.EqualValues(t, 1, snap.Version)
	require.Len(t, snap.Providers, 1)
}

func TestValidateRejectsNegativeWeight(t *testing.T) {
	err := Validate(&Snapshot{Providers: []*model.Provider{{Weight: -1}}})
	require.Error(t, err)
}

func TestSetStrategyPreservesProviders(t *testing.T) {
	setupTestDB(t)
	s := New()
	require.NoError(t, model.DB.Create(&model.Provider{Name: "p1", BaseURL: "https://x"}).Error)
	require.NoError(t, s.Reload())

	s.SetStrategy(router.LatencyFirst, router.Weights{Latency: 1})
	snap := s.Load()
	require.Equal(t, router.LatencyFirst, snap.Strategy)
	require.Len(t, snap.Providers, 1)
}

func TestSetKeyStrategyPreservesRoutingStrategy(t *testing.T) {
	s := New()
	s.SetStrategy(router.LatencyFirst, router.Weights{Latency: 1})

	s.SetKeyStrategy(keymanager.RoundRobin)
	snap := s.Load()
	require.Equal(t, keymanager.RoundRobin, snap.KeyStrategy)
	require.Equal(t, router.LatencyFirst, snap.Strategy)
}

func TestDefaultSnapshotUsesDefaultKeyStrategy(t *testing.T) {
	snap := New().Load()
	require.Equal(t, keymanager.DefaultStrategy, snap.KeyStrategy)
}
