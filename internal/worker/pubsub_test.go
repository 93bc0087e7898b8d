package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotabus/rotabus/internal/worker"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newDispatcher(positions *fakePositions, purger *fakePurger, store worker.Pinger) *worker.Dispatcher {
	cfg := worker.RefreshJobConfig{Config: worker.DefaultRefreshConfig(), Logger: zerolog.Nop()}
	if positions != nil {
		cfg.Positions = positions
	}
	if purger != nil {
		cfg.Purger = purger
	}
	return worker.NewDispatcher(worker.NewRefreshJob(cfg), store, zerolog.Nop())
}

func message(t *testing.T, jobType string) []byte {
	t.Helper()
	msg, err := worker.EncodeJob(worker.JobMessage{JobType: jobType, RequestedBy: "u-1", RequestedAt: time.Now()})
	require.NoError(t, err)
	return msg.Data
}

func TestDispatcher_PositionsRefresh(t *testing.T) {
	positions := &fakePositions{vehicles: 2}
	d := newDispatcher(positions, nil, nil)

	jobType, err := d.Process(context.Background(), message(t, worker.JobPositionsRefresh))

	require.NoError(t, err)
	assert.Equal(t, worker.JobPositionsRefresh, jobType)
	assert.Equal(t, int32(1), positions.calls.Load())
}

func TestDispatcher_PositionsRefreshFailure(t *testing.T) {
	d := newDispatcher(&fakePositions{err: errors.New("503")}, nil, nil)

	_, err := d.Process(context.Background(), message(t, worker.JobPositionsRefresh))

	require.Error(t, err)
	assert.NotErrorIs(t, err, worker.ErrUnknownJob, "failures are retried, not dropped")
}

func TestDispatcher_StorePurge(t *testing.T) {
	purger := &fakePurger{purged: 3}
	d := newDispatcher(nil, purger, nil)

	_, err := d.Process(context.Background(), message(t, worker.JobStorePurge))

	require.NoError(t, err)
	assert.Equal(t, int32(1), purger.calls.Load())
}

func TestDispatcher_HealthCheck(t *testing.T) {
	_, err := newDispatcher(nil, nil, fakePinger{}).Process(context.Background(), message(t, worker.JobHealthCheck))
	assert.NoError(t, err)

	_, err = newDispatcher(nil, nil, nil).Process(context.Background(), message(t, worker.JobHealthCheck))
	assert.NoError(t, err, "no store to check")

	_, err = newDispatcher(nil, nil, fakePinger{err: errors.New("connection refused")}).
		Process(context.Background(), message(t, worker.JobHealthCheck))
	assert.ErrorContains(t, err, "store unreachable")
}

func TestDispatcher_UnknownJob(t *testing.T) {
	jobType, err := newDispatcher(nil, nil, nil).Process(context.Background(), message(t, "provider_refresh"))

	assert.ErrorIs(t, err, worker.ErrUnknownJob)
	assert.Equal(t, "provider_refresh", jobType)
}

func TestDispatcher_MalformedMessage(t *testing.T) {
	_, err := newDispatcher(nil, nil, nil).Process(context.Background(), []byte("{not json"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, worker.ErrUnknownJob)
}

func TestEncodeJob(t *testing.T) {
	at := time.Date(2026, 3, 1, 11, 14, 0, 0, time.UTC)
	msg, err := worker.EncodeJob(worker.JobMessage{JobType: worker.JobPositionsRefresh, RequestedBy: "u-1", RequestedAt: at})
	require.NoError(t, err)

	assert.Equal(t, worker.JobPositionsRefresh, msg.Attributes["job_type"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "positions_refresh", decoded["job_type"])
	assert.Equal(t, "u-1", decoded["requested_by"])
	assert.Equal(t, "2026-03-01T11:14:00Z", decoded["requested_at"])
}
