package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTracedDB opens an in-memory sqlite database and a span recorder installed as the global provider
func setupTracedDB(t *testing.T) (*gorm.DB, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE "Orders" ("Id" TEXT, "Code" TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO "Orders" VALUES ('1', 'SIP-1')`).Error)
	return db, recorder
}

type codeOnly struct {
	Code string `gorm:"column:Code"`
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db, recorder := setupTracedDB(t)

	require.NoError(t, NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop()).Register(db))

	var rows []codeOnly
	require.NoError(t, db.WithContext(context.Background()).Raw(`SELECT "Code" FROM "Orders"`).Scan(&rows).Error)
	assert.Empty(t, recorder.Ended())
}

func TestDBTracingPlugin_RecordsReadSpans(t *testing.T) {
	db, recorder := setupTracedDB(t)
	core, logs := observer.New(zapcore.InfoLevel)

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.DBSystem = "sqlite"
	require.NoError(t, NewDBTracingPlugin(cfg, zap.New(core)).Register(db))
	assert.Equal(t, 1, logs.FilterMessage("Database tracing enabled").Len())

	var rows []codeOnly
	require.NoError(t, db.WithContext(context.Background()).Raw(`SELECT "Code" FROM "Orders" WHERE "Id" = ?`, "1").Scan(&rows).Error)
	require.Len(t, rows, 1)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	for _, s := range spans {
		for _, attr := range s.Attributes() {
			assert.NotEqual(t, "db.slow_query", string(attr.Key), "fast query flagged as slow")
		}
	}
}

func TestDBTracingPlugin_SlowQuery(t *testing.T) {
	db, recorder := setupTracedDB(t)

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.SlowQueryThresh = -1
	require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))

	var rows []codeOnly
	require.NoError(t, db.WithContext(context.Background()).Raw(`SELECT "Code" FROM "Orders"`).Scan(&rows).Error)

	var flagged bool
	for _, s := range recorder.Ended() {
		for _, ev := range s.Events() {
			if ev.Name == "slow_query_warning" {
				flagged = true
			}
		}
	}
	assert.True(t, flagged, "expected a slow_query_warning event")
}

func TestDBTracingPlugin_ErrorMarksSpan(t *testing.T) {
	db, recorder := setupTracedDB(t)

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))

	var rows []codeOnly
	err := db.WithContext(context.Background()).Raw(`SELECT "Code" FROM "Missing"`).Scan(&rows).Error
	require.Error(t, err)

	var errored bool
	for _, s := range recorder.Ended() {
		if s.Status().Code == codes.Error {
			errored = true
		}
	}
	assert.True(t, errored)
}

func TestDBTracingPlugin_DoubleRegistration(t *testing.T) {
	db, _ := setupTracedDB(t)

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())

	require.NoError(t, plugin.Register(db))
	assert.Error(t, plugin.Register(db))
}
