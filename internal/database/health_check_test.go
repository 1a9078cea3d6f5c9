package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Basic(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	logger := logrus.New()
	checker := NewHealthChecker(db, logger)
	assert.NotNil(t, checker)

	err = checker.Check(context.Background())
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_FailureAndRecovery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	logger := logrus.New()
	checker := NewHealthChecker(db, logger)

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)

	ctx := context.Background()
	err = checker.Check(ctx)
	assert.Error(t, err)
	assert.False(t, checker.IsHealthy())

	result := checker.GetHealthResult()
	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.LastError)

	mock.ExpectPing()

	err = checker.Check(ctx)
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_BackgroundMonitoring(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	// 检查间隔设置得足够大，只有启动时的首次检查会执行
	mock.ExpectPing()

	logger := logrus.New()
	checker := NewHealthChecker(db, logger)
	checker.SetCheckInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker.Start(ctx)

	assert.Eventually(t, checker.IsHealthy, time.Second, 10*time.Millisecond)

	checker.Stop()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_WaitForHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	logger := logrus.New()
	checker := NewHealthChecker(db, logger)

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	ctx := context.Background()
	err = checker.Check(ctx)
	require.Error(t, err)

	mock.ExpectPing()

	go func() {
		time.Sleep(50 * time.Millisecond)
		checker.Check(ctx)
	}()

	err = checker.WaitForHealthy(ctx, 2*time.Second)
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())

	assert.NoError(t, mock.ExpectationsWereMet())
}
