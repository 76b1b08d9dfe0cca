package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"yfinance-observer/src/config"
	"yfinance-observer/src/helpers"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SQLiteSuite struct {
	suite.Suite
	db  *SQLiteDB
	now time.Time
}

func TestSQLiteSuite(t *testing.T) {
	suite.Run(t, new(SQLiteSuite))
}

func (s *SQLiteSuite) SetupTest() {
	cfg := config.Default().MConfig
	cfg.Storage.DBPath = filepath.Join(s.T().TempDir(), "test.db")

	db, err := NewSQLiteDB(cfg, logger.NewNop())
	s.Require().NoError(err)
	s.now = time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return s.now }
	s.Require().NoError(db.Initialize())
	s.db = db
}

func (s *SQLiteSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

func (s *SQLiteSuite) countRows(table string) int {
	var n int
	s.Require().NoError(s.db.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n))
	return n
}

// -----------------------------------------------------------------------------

func (s *SQLiteSuite) TestInitializeIsRepeatable() {
	s.Require().NoError(s.db.SavePriceBars([]models.MPriceBar{{Symbol: "AAPL", Timestamp: 1, Close: 1}}))
	s.Require().NoError(s.db.createTables())
	s.Equal(1, s.countRows("price_bars"))
}

func (s *SQLiteSuite) TestSavePriceBarsUpserts() {
	bars := []models.MPriceBar{
		{Symbol: "AAPL", Timestamp: 100, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Symbol: "AAPL", Timestamp: 200, Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 12},
	}
	s.Require().NoError(s.db.SavePriceBars(bars))

	bars[1].Close = 1.9
	s.Require().NoError(s.db.SavePriceBars(bars[1:]))
	s.Equal(2, s.countRows("price_bars"))

	var closePrice float64
	s.Require().NoError(s.db.DB.QueryRow("SELECT close FROM price_bars WHERE symbol = ? AND timestamp = ?", "AAPL", 200).Scan(&closePrice))
	s.Equal(1.9, closePrice)

	s.NoError(s.db.SavePriceBars(nil))
}

func (s *SQLiteSuite) TestLatestTicksNewestPerSymbol() {
	ticks := []models.MPricingData{
		{ID: "BTC-USD", Price: 100, Time: 1000, QuoteType: models.QuoteTypeCryptocurrency},
		{ID: "BTC-USD", Price: 101, Time: 3000, QuoteType: models.QuoteTypeCryptocurrency, ShortName: "Bitcoin USD"},
		{ID: "AAPL", Price: 180, Time: 2000, MarketHours: models.MarketHoursRegular, Exchange: "NMS"},
		{ID: "MSFT", Price: 400, Time: 500},
	}
	s.Require().NoError(s.db.SavePriceTicks(ticks))

	got, err := s.db.LatestTicks(10)
	s.Require().NoError(err)
	if diff := cmp.Diff([]models.MPricingData{ticks[1], ticks[2], ticks[3]}, got); diff != "" {
		s.T().Errorf("latest ticks mismatch (-want +got):\n%s", diff)
	}

	got, err = s.db.LatestTicks(1)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("BTC-USD", got[0].ID)

	got, err = s.db.LatestTicks(0)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *SQLiteSuite) TestCleanupOldData() {
	old := s.now.AddDate(0, 0, -10)
	recent := s.now.Add(-time.Hour)

	s.Require().NoError(s.db.SavePriceBars([]models.MPriceBar{
		{Symbol: "AAPL", Timestamp: old.Unix(), Close: 1},
		{Symbol: "AAPL", Timestamp: recent.Unix(), Close: 2},
	}))
	s.Require().NoError(s.db.SavePriceTicks([]models.MPricingData{
		{ID: "AAPL", Time: old.UnixMilli(), Price: 1},
		{ID: "AAPL", Time: recent.UnixMilli(), Price: 2},
	}))

	s.Require().NoError(s.db.CleanupOldData(7))
	s.Equal(1, s.countRows("price_bars"))
	s.Equal(1, s.countRows("price_ticks"))

	s.Require().NoError(s.db.CleanupOldData(0))
	s.Equal(1, s.countRows("price_bars"))
}

// -----------------------------------------------------------------------------

func TestSQLiteInitializeFailureIsDatabaseError(t *testing.T) {
	cfg := config.Default().MConfig
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "missing", "dir", "test.db")

	db, err := NewSQLiteDB(cfg, logger.NewNop())
	require.NoError(t, err)

	err = db.Initialize()
	var dbErr *helpers.DatabaseError
	assert.True(t, errors.As(err, &dbErr), "got %v", err)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default().MConfig
	cfg.Storage.DBType = "oracle"
	_, err := New(cfg, logger.NewNop())
	assert.ErrorContains(t, err, "unsupported")

	cfg.Storage.DBType = "sqlite"
	db, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteDB{}, db)
}
