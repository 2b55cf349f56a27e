package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/orchard/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newPostgresDB starts a disposable PostgreSQL container with the farm schema
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("orchard_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("orchard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.FarmModels()...))
	return db
}

func TestGormFarmQueryRepository_Postgres(t *testing.T) {
	db := newPostgresDB(t)
	f := seedFarm(t, db)
	repo := NewGormFarmQueryRepository(db)
	ctx := context.Background()

	harvest, err := repo.GetHarvest(ctx, f.harvests[1].ID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 6, 1), harvest.StartDate)

	investments, err := repo.ListInvestmentsByHarvest(ctx, f.harvests[1].ID)
	require.NoError(t, err)
	require.Len(t, investments, 2)
	// numeric(18,4) keeps every digit
	assert.Equal(t, "1234.5678", investments[1].Amount.StringFixed(4))

	total := decimal.Zero
	for _, inv := range investments {
		total = total.Add(inv.Amount)
	}
	assert.Equal(t, "1234.6678", total.StringFixed(4))
}
