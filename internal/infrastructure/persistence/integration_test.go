//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/erp/mikrosync/internal/infrastructure/migration"
)

// newPostgresShop starts a PostgreSQL container and applies the shop schema
func newPostgresShop(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shop_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	runMigrations(t, sqlDB)
	return db
}

func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	m, err := migration.New(sqlDB, zaptest.NewLogger(t))
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
}

func TestGormOrderSource_Postgres(t *testing.T) {
	db := newPostgresShop(t)
	ctx := context.Background()

	for _, stmt := range []string{
		`INSERT INTO "Users" ("Id", "Code") VALUES (7, 'CUST-7')`,
		`INSERT INTO "Products" ("Id", "Code") VALUES (1, 'STK-001'), (2, NULL)`,
		`INSERT INTO "Orders" ("Id", "Code", "CustomerId", "OrderDate", "CreatedAt") VALUES
			(1, 'SIP-1', 7, '2024-03-01 10:00:00', '2024-03-01 10:00:00+00'),
			(2, 'SIP-2', 7, '2024-03-05 09:30:00', '2024-03-05 09:30:00+00')`,
		`INSERT INTO "OrderItems" ("OrderId", "ProductId", "Quantity", "Price") VALUES
			(2, 1, 2, 10.00),
			(2, 2, 1, 12.50),
			(1, 1, 5, 10.00)`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}

	src := NewGormOrderSource(db, DefaultSourceTables(), 5*time.Second)

	order, err := src.LatestOrder(ctx)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "SIP-2", order.Code)
	assert.Equal(t, "7", order.CustomerID)
	assert.NotEmpty(t, order.OrderDate)

	customer, err := src.CustomerCode(ctx, order.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "CUST-7", customer)

	items, err := src.OrderItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, order.ID, item.OrderID)
	}

	missing, err := src.ProductCode(ctx, "2")
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = src.ProductCode(ctx, "not-a-number")
	assert.ErrorIs(t, err, relay.ErrExtractionFailed)
}

func TestGormOrderSource_Postgres_NullCreatedAt(t *testing.T) {
	db := newPostgresShop(t)
	ctx := context.Background()

	for _, stmt := range []string{
		`ALTER TABLE "Orders" ALTER COLUMN "CreatedAt" DROP NOT NULL`,
		`INSERT INTO "Orders" ("Id", "Code", "CreatedAt") VALUES
			(1, 'SIP-1', '2024-03-01 10:00:00+00'),
			(9, 'SIP-9', NULL)`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}

	src := NewGormOrderSource(db, DefaultSourceTables(), 5*time.Second)

	order, err := src.LatestOrder(ctx)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "SIP-1", order.Code)
}
