package download

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kmoussa/spacegrab/pkg/contract"
	"github.com/kmoussa/spacegrab/pkg/storage"
	storagemocks "github.com/kmoussa/spacegrab/pkg/storage/mocks"
)

// sizedDialer yields clients that resolve object sizes from the sizes map
// and transfer the full object in one chunk. peak records the maximum number
// of simultaneous transfers observed.
func sizedDialer(ctrl *gomock.Controller, sizes map[string]int64, peak *atomic.Int32) *storagemocks.MockDialer {
	var inFlight atomic.Int32

	dialer := storagemocks.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(
		func(context.Context) (storage.Client, error) {
			client := storagemocks.NewMockClient(ctrl)
			client.EXPECT().Size(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, _, key string) (int64, error) {
					return sizes[key], nil
				}).AnyTimes()
			client.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req storage.Request) error {
					cur := inFlight.Add(1)
					if peak != nil {
						for {
							old := peak.Load()
							if cur <= old || peak.CompareAndSwap(old, cur) {
								break
							}
						}
					}
					time.Sleep(10 * time.Millisecond)
					req.Progress(sizes[req.Key])
					inFlight.Add(-1)
					return nil
				}).AnyTimes()
			client.EXPECT().Close().Return(nil).AnyTimes()
			return client, nil
		}).AnyTimes()
	return dialer
}

func testContract(id, key string) contract.Contract {
	return contract.Contract{
		ID:       id,
		Bucket:   "media-store",
		Key:      key,
		Filename: "/tmp/" + key,
	}
}

func TestManagerSerialExecution(t *testing.T) {
	ctrl := gomock.NewController(t)

	sizes := map[string]int64{"ep1.mkv": 100, "ep2.mkv": 200, "ep3.mkv": 50}
	var peak atomic.Int32
	dialer := sizedDialer(ctrl, sizes, &peak)

	m, err := NewManager(context.Background(), dialer, Options{
		Workers:         1,
		PopWait:         20 * time.Millisecond,
		TrackerInterval: time.Hour, // keep the tracker quiet during the test
		TrackerOutput:   &syncBuffer{},
	})
	require.NoError(t, err)

	tasks := []*Task{
		m.Submit(testContract("t1", "ep1.mkv")),
		m.Submit(testContract("t2", "ep2.mkv")),
		m.Submit(testContract("t3", "ep3.mkv")),
	}

	m.Start(context.Background())
	require.NoError(t, m.Wait(context.Background()))
	m.Stop()

	assert.Equal(t, int32(1), peak.Load(), "pool size 1 executes serially")
	assert.Equal(t, 3, m.Complete().Len())
	assert.Equal(t, 0, m.Failed().Len())

	// Settlement precedes the final status write by a hair; poll for it.
	require.Eventually(t, func() bool {
		for _, task := range tasks {
			if task.Status() != StatusComplete {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	for _, task := range tasks {
		line, ok := m.Board().Get(task.ID)
		require.True(t, ok, "board entry for %s", task.ID)
		assert.True(t, strings.HasPrefix(line, "transferred 100.00%"), "got %q", line)
	}
}

func TestManagerSizeProbeFailureDoesNotBlockOthers(t *testing.T) {
	ctrl := gomock.NewController(t)

	dialer := storagemocks.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(
		func(context.Context) (storage.Client, error) {
			client := storagemocks.NewMockClient(ctrl)
			client.EXPECT().Size(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, _, key string) (int64, error) {
					if key == "broken.mkv" {
						return 0, storage.ErrTransport
					}
					return 100, nil
				}).AnyTimes()
			client.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req storage.Request) error {
					req.Progress(100)
					return nil
				}).AnyTimes()
			client.EXPECT().Close().Return(nil).AnyTimes()
			return client, nil
		}).AnyTimes()

	m, err := NewManager(context.Background(), dialer, Options{
		Workers:         2,
		PopWait:         20 * time.Millisecond,
		TrackerInterval: time.Hour,
		TrackerOutput:   &syncBuffer{},
	})
	require.NoError(t, err)

	probed := m.Submit(testContract("t1", "broken.mkv"))
	m.Submit(testContract("t2", "ep1.mkv"))

	m.Start(context.Background())
	require.NoError(t, m.Wait(context.Background()))
	m.Stop()

	assert.Equal(t, 2, m.Complete().Len(), "a failed size probe must not sink the task")
	assert.Equal(t, 0, m.Failed().Len())

	// The completed transfer backfilled the unknown size.
	require.Eventually(t, func() bool {
		size, known := probed.Size()
		return known && size == 100
	}, time.Second, 5*time.Millisecond)
}

func TestManagerFailedTransferLandsOnFailedQueue(t *testing.T) {
	ctrl := gomock.NewController(t)

	dialer := storagemocks.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(
		func(context.Context) (storage.Client, error) {
			client := storagemocks.NewMockClient(ctrl)
			client.EXPECT().Size(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(100), nil).AnyTimes()
			client.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req storage.Request) error {
					if req.Key == "lost.mkv" {
						req.Progress(10)
						return storage.ErrTransfer
					}
					req.Progress(100)
					return nil
				}).AnyTimes()
			client.EXPECT().Close().Return(nil).AnyTimes()
			return client, nil
		}).AnyTimes()

	m, err := NewManager(context.Background(), dialer, Options{
		Workers:         1,
		PopWait:         20 * time.Millisecond,
		TrackerInterval: time.Hour,
		TrackerOutput:   &syncBuffer{},
	})
	require.NoError(t, err)

	doomed := m.Submit(testContract("t1", "lost.mkv"))
	m.Submit(testContract("t2", "ep1.mkv"))

	m.Start(context.Background())
	require.NoError(t, m.Wait(context.Background()))
	m.Stop()

	assert.Equal(t, 1, m.Complete().Len())
	assert.Equal(t, 1, m.Failed().Len())

	failed, ok := m.Failed().TryPop()
	require.True(t, ok)
	assert.Same(t, doomed, failed)
	assert.Equal(t, StatusFailed, failed.Status())
	assert.ErrorIs(t, failed.Err(), storage.ErrTransfer)
}

func TestManagerSecondStartDrainsLateSubmissions(t *testing.T) {
	ctrl := gomock.NewController(t)

	sizes := map[string]int64{"ep1.mkv": 100, "ep2.mkv": 100}
	dialer := sizedDialer(ctrl, sizes, nil)

	m, err := NewManager(context.Background(), dialer, Options{
		Workers:         1,
		PopWait:         20 * time.Millisecond,
		TrackerInterval: time.Hour,
		TrackerOutput:   &syncBuffer{},
	})
	require.NoError(t, err)

	m.Submit(testContract("t1", "ep1.mkv"))
	m.Start(context.Background())
	require.NoError(t, m.Wait(context.Background()))

	// Submitted after the first drain: stays pending until the next Start.
	late := m.Submit(testContract("t2", "ep2.mkv"))

	waitCtx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(waitCtx), context.DeadlineExceeded)
	assert.Equal(t, StatusPending, late.Status())

	m.Start(context.Background())
	require.NoError(t, m.Wait(context.Background()))
	m.Stop()

	assert.Equal(t, 2, m.Complete().Len())
	require.Eventually(t, func() bool {
		return late.Status() == StatusComplete
	}, time.Second, 5*time.Millisecond)
}

func TestManagerStopWaitsForInFlightTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)

	started := make(chan struct{})
	release := make(chan struct{})

	dialer := storagemocks.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(
		func(context.Context) (storage.Client, error) {
			client := storagemocks.NewMockClient(ctrl)
			client.EXPECT().Size(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(100), nil).AnyTimes()
			client.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req storage.Request) error {
					close(started)
					<-release
					req.Progress(100)
					return nil
				})
			client.EXPECT().Close().Return(nil).AnyTimes()
			return client, nil
		})

	m, err := NewManager(context.Background(), dialer, Options{
		Workers:         1,
		PopWait:         20 * time.Millisecond,
		JoinTimeout:     5 * time.Second,
		TrackerInterval: time.Hour,
		TrackerOutput:   &syncBuffer{},
	})
	require.NoError(t, err)

	task := m.Submit(testContract("t1", "ep1.mkv"))
	m.Start(context.Background())

	<-started

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a transfer was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the transfer finished")
	}

	require.Eventually(t, func() bool {
		return task.Status() == StatusComplete
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Complete().Len())
}

func TestManagerTaskOnExactlyOneQueue(t *testing.T) {
	ctrl := gomock.NewController(t)

	dialer := storagemocks.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).DoAndReturn(
		func(context.Context) (storage.Client, error) {
			client := storagemocks.NewMockClient(ctrl)
			client.EXPECT().Size(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(100), nil).AnyTimes()
			// The transfer delivers everything and then reports an error; the
			// task must settle as complete, not failed.
			client.EXPECT().Download(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req storage.Request) error {
					req.Progress(100)
					return storage.ErrTransfer
				})
			client.EXPECT().Close().Return(nil).AnyTimes()
			return client, nil
		})

	m, err := NewManager(context.Background(), dialer, Options{
		Workers:         1,
		PopWait:         20 * time.Millisecond,
		TrackerInterval: time.Hour,
		TrackerOutput:   &syncBuffer{},
	})
	require.NoError(t, err)

	m.Submit(testContract("t1", "ep1.mkv"))
	m.Start(context.Background())
	require.NoError(t, m.Wait(context.Background()))
	m.Stop()

	assert.Equal(t, 1, m.Complete().Len())
	assert.Equal(t, 0, m.Failed().Len())
}
