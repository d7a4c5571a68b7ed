package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupShopTestDB creates an in-memory SQLite database with the shop tables
func setupShopTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection of an in-memory sqlite database is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	for _, stmt := range []string{
		`CREATE TABLE "Users" ("Id" TEXT PRIMARY KEY, "Code" TEXT)`,
		`CREATE TABLE "Products" ("Id" TEXT PRIMARY KEY, "Code" TEXT)`,
		`CREATE TABLE "Orders" (
			"Id" TEXT PRIMARY KEY,
			"Code" TEXT NOT NULL,
			"CustomerId" TEXT,
			"OrderDate" TEXT,
			"CreatedAt" TEXT
		)`,
		`CREATE TABLE "OrderItems" (
			"Id" INTEGER PRIMARY KEY AUTOINCREMENT,
			"ProductId" TEXT,
			"Quantity" INTEGER,
			"Price" TEXT,
			"OrderId" TEXT
		)`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, id, code, customerID, orderDate, createdAt string) {
	t.Helper()
	var date any
	if orderDate != "" {
		date = orderDate
	}
	require.NoError(t, db.Exec(
		`INSERT INTO "Orders" ("Id", "Code", "CustomerId", "OrderDate", "CreatedAt") VALUES (?, ?, ?, ?, ?)`,
		id, code, customerID, date, createdAt,
	).Error)
}

func TestGormOrderSource_LatestOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("empty table returns nil", func(t *testing.T) {
		db := setupShopTestDB(t)
		src := NewGormOrderSource(db, DefaultSourceTables(), time.Second)

		order, err := src.LatestOrder(ctx)

		require.NoError(t, err)
		assert.Nil(t, order)
	})

	t.Run("picks the most recently created order", func(t *testing.T) {
		db := setupShopTestDB(t)
		seedOrder(t, db, "o-1", "SIP-1", "7", "2024-03-01T10:00:00", "2024-03-01 10:00:00")
		seedOrder(t, db, "o-3", "SIP-3", "7", "", "2024-03-05 09:30:00")
		seedOrder(t, db, "o-2", "SIP-2", "8", "2024-03-02T10:00:00", "2024-03-02 10:00:00")
		src := NewGormOrderSource(db, DefaultSourceTables(), time.Second)

		order, err := src.LatestOrder(ctx)

		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, "o-3", order.ID)
		assert.Equal(t, "SIP-3", order.Code)
		assert.Equal(t, "7", order.CustomerID)
		assert.Empty(t, order.OrderDate)
		assert.Equal(t, "2024-03-05 09:30:00", order.Date())
	})

	t.Run("rows without creation time are never latest", func(t *testing.T) {
		db := setupShopTestDB(t)
		seedOrder(t, db, "o-1", "SIP-1", "7", "", "2024-03-01 10:00:00")
		require.NoError(t, db.Exec(
			`INSERT INTO "Orders" ("Id", "Code", "CustomerId", "CreatedAt") VALUES ('o-9', 'SIP-9', '7', NULL)`,
		).Error)
		src := NewGormOrderSource(db, DefaultSourceTables(), time.Second)

		order, err := src.LatestOrder(ctx)

		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, "SIP-1", order.Code)
	})

	t.Run("ties on creation time are broken by id", func(t *testing.T) {
		db := setupShopTestDB(t)
		seedOrder(t, db, "o-a", "SIP-A", "1", "", "2024-03-05 09:30:00")
		seedOrder(t, db, "o-b", "SIP-B", "1", "", "2024-03-05 09:30:00")
		src := NewGormOrderSource(db, DefaultSourceTables(), 0)

		order, err := src.LatestOrder(ctx)

		require.NoError(t, err)
		assert.Equal(t, "SIP-B", order.Code)
	})

	t.Run("custom table names are honored", func(t *testing.T) {
		db := setupShopTestDB(t)
		require.NoError(t, db.Exec(`ALTER TABLE "Orders" RENAME TO "SalesOrders"`).Error)
		seedSales := `INSERT INTO "SalesOrders" ("Id", "Code", "CustomerId", "CreatedAt") VALUES ('s-1', 'SIP-S', '1', '2024-01-01')`
		require.NoError(t, db.Exec(seedSales).Error)

		tables := DefaultSourceTables()
		tables.Orders = "SalesOrders"
		src := NewGormOrderSource(db, tables, time.Second)

		order, err := src.LatestOrder(ctx)

		require.NoError(t, err)
		assert.Equal(t, "SIP-S", order.Code)
	})
}

func TestGormOrderSource_Lookups(t *testing.T) {
	ctx := context.Background()
	db := setupShopTestDB(t)
	require.NoError(t, db.Exec(`INSERT INTO "Users" ("Id", "Code") VALUES ('7', 'CUST-7')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO "Products" ("Id", "Code") VALUES ('P1', 'STK-001'), ('P2', NULL)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO "OrderItems" ("ProductId", "Quantity", "Price", "OrderId") VALUES
		('P1', 2, '10.0', 'o-1'),
		('P2', 3, '12.5', 'o-1'),
		('P1', 1, '10.0', 'o-2')`).Error)
	src := NewGormOrderSource(db, DefaultSourceTables(), time.Second)

	t.Run("customer code", func(t *testing.T) {
		code, err := src.CustomerCode(ctx, "7")
		require.NoError(t, err)
		assert.Equal(t, "CUST-7", code)
	})

	t.Run("unknown customer yields empty code", func(t *testing.T) {
		code, err := src.CustomerCode(ctx, "404")
		require.NoError(t, err)
		assert.Empty(t, code)
	})

	t.Run("product code", func(t *testing.T) {
		code, err := src.ProductCode(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, "STK-001", code)
	})

	t.Run("null product code yields empty code", func(t *testing.T) {
		code, err := src.ProductCode(ctx, "P2")
		require.NoError(t, err)
		assert.Empty(t, code)
	})

	t.Run("order items are limited to the order", func(t *testing.T) {
		items, err := src.OrderItems(ctx, "o-1")
		require.NoError(t, err)
		require.Len(t, items, 2)

		assert.ElementsMatch(t, []relay.OrderItem{
			{ProductID: "P1", Quantity: "2", UnitPrice: "10.0", OrderID: "o-1"},
			{ProductID: "P2", Quantity: "3", UnitPrice: "12.5", OrderID: "o-1"},
		}, items)
	})

	t.Run("order without items", func(t *testing.T) {
		items, err := src.OrderItems(ctx, "o-none")
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestGormOrderSource_PostgresQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("latest order query", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(regexp.QuoteMeta(
			`SELECT "Id", "Code", "CustomerId", "OrderDate", "CreatedAt" FROM "Orders" ORDER BY "CreatedAt" DESC NULLS LAST, "Id" DESC LIMIT 1`,
		)).WillReturnRows(sqlmock.NewRows([]string{"Id", "Code", "CustomerId", "OrderDate", "CreatedAt"}).
			AddRow("o-1", "SIP-1", "7", "2024-03-05T09:30:00Z", "2024-03-05T09:30:00Z"))

		order, err := NewGormOrderSource(db.DB, DefaultSourceTables(), time.Second).LatestOrder(ctx)

		require.NoError(t, err)
		assert.Equal(t, "SIP-1", order.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup binds the id as a parameter", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT "Code" FROM "Users" WHERE "Id" = $1 LIMIT 1`)).
			WithArgs("7; DROP TABLE x").
			WillReturnRows(sqlmock.NewRows([]string{"Code"}))

		code, err := NewGormOrderSource(db.DB, DefaultSourceTables(), time.Second).CustomerCode(ctx, "7; DROP TABLE x")

		require.NoError(t, err)
		assert.Empty(t, code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("quoted identifiers escape embedded quotes", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		tables := DefaultSourceTables()
		tables.Products = `Pro"ducts`
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT "Code" FROM "Pro""ducts" WHERE "Id" = $1 LIMIT 1`)).
			WithArgs("P1").
			WillReturnRows(sqlmock.NewRows([]string{"Code"}).AddRow("STK-1"))

		code, err := NewGormOrderSource(db.DB, tables, time.Second).ProductCode(ctx, "P1")

		require.NoError(t, err)
		assert.Equal(t, "STK-1", code)
	})
}

func TestGormOrderSource_Failures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		expect string
		call   func(*GormOrderSource) error
	}{
		{
			name:   "latest order",
			expect: `FROM "Orders"`,
			call: func(s *GormOrderSource) error {
				_, err := s.LatestOrder(ctx)
				return err
			},
		},
		{
			name:   "customer code",
			expect: `FROM "Users"`,
			call: func(s *GormOrderSource) error {
				_, err := s.CustomerCode(ctx, "7")
				return err
			},
		},
		{
			name:   "order items",
			expect: `FROM "OrderItems"`,
			call: func(s *GormOrderSource) error {
				_, err := s.OrderItems(ctx, "o-1")
				return err
			},
		},
		{
			name:   "product code",
			expect: `FROM "Products"`,
			call: func(s *GormOrderSource) error {
				_, err := s.ProductCode(ctx, "P1")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, mockDB := newMockDatabase(t)
			defer mockDB.Close()

			mock.ExpectQuery(regexp.QuoteMeta(tt.expect)).WillReturnError(assert.AnError)

			err := tt.call(NewGormOrderSource(db.DB, DefaultSourceTables(), time.Second))

			require.Error(t, err)
			assert.ErrorIs(t, err, relay.ErrExtractionFailed)
			assert.Contains(t, err.Error(), assert.AnError.Error())
		})
	}
}

func TestGormOrderSource_QueryTimeout(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "Orders"`)).
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"Id"}).AddRow("o-1"))

	_, err := NewGormOrderSource(db.DB, DefaultSourceTables(), 20*time.Millisecond).LatestOrder(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, relay.ErrExtractionFailed)
}
