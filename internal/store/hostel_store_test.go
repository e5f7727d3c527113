package store

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/hostelhub/client/internal/api"
	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/models"
	"github.com/kimhsiao/hostelhub/client/internal/storage"
	syncpkg "github.com/kimhsiao/hostelhub/client/internal/sync"
	"github.com/kimhsiao/hostelhub/client/internal/sync/queue"
	"github.com/kimhsiao/hostelhub/client/internal/testutil/fakeapi"
)

type switchable struct{ online atomic.Bool }

func (s *switchable) Online() bool { return s.online.Load() }

type harness struct {
	srv    *fakeapi.Server
	client *api.Client
	conn   *switchable
	queue  *queue.Queue
	store  *HostelStore
	engine *syncpkg.Engine
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.APIURL())
	client.SetToken(fakeapi.TokenFor(fakeapi.AdminID))

	h := &harness{srv: srv, client: client, conn: &switchable{}, queue: queue.New(storage.NewMemoryStorage())}
	h.conn.online.Store(online)
	h.store = NewHostelStore(client, h.conn, h.queue)
	h.engine = syncpkg.NewEngine(h.queue, client, h.store)
	return h
}

func (h *harness) queued(t *testing.T) []models.QueuedAction {
	t.Helper()
	actions, err := h.queue.Drain()
	require.NoError(t, err)
	return actions
}

func callStrings(calls []fakeapi.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func TestHostelStore_online(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	added, err := h.store.AddHostel(ctx, models.HostelInput{Name: "Sea Breeze", Location: "Lisbon", Capacity: 40})
	require.NoError(t, err)
	assert.False(t, added.ID.IsZero())

	_, err = h.store.UpdateHostel(ctx, added.ID, models.HostelInput{Name: "Sea Breeze", Location: "Lisbon", Capacity: 12})
	require.NoError(t, err)

	got, err := h.store.GetHostel(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Capacity)

	require.NoError(t, h.store.GetHostels(ctx))
	state := h.store.State()
	assert.Equal(t, StatusReady, state.Status)
	assert.Len(t, state.Hostels, 1)
	assert.Equal(t, 1, state.UserCount)

	require.NoError(t, h.store.DeleteHostel(ctx, added.ID))
	assert.Empty(t, h.store.State().Hostels)
	assert.Empty(t, h.queued(t))
}

func TestHostelStore_onlineFailureKeepsCollection(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.srv.SeedHostel(models.Hostel{Name: "A", Location: "Porto", Capacity: 5})
	require.NoError(t, h.store.GetHostels(ctx))

	h.srv.Fail("GET", "/hostels", http.StatusInternalServerError, "", 1)
	err := h.store.GetHostels(ctx)
	require.Error(t, err)

	state := h.store.State()
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, MsgFetchHostels, state.Err)
	assert.Len(t, state.Hostels, 1)

	h.store.ClearError()
	assert.Empty(t, h.store.State().Err)
}

func TestHostelStore_serverMessageWins(t *testing.T) {
	h := newHarness(t, true)
	h.srv.Fail("POST", "/hostels", http.StatusBadRequest, "Hostel already exists", 1)

	_, err := h.store.AddHostel(context.Background(), models.HostelInput{Name: "A", Location: "B", Capacity: 1})
	require.Error(t, err)
	assert.Equal(t, "Hostel already exists", h.store.State().Err)
}

func TestHostelStore_networkFailureMessages(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.srv.Close()

	tests := []struct {
		name string
		run  func() error
		want string
	}{
		{"get one", func() error { _, err := h.store.GetHostel(ctx, "1"); return err }, MsgFetchHostel},
		{"add", func() error {
			_, err := h.store.AddHostel(ctx, models.HostelInput{Name: "A", Location: "B", Capacity: 1})
			return err
		}, MsgAddHostel},
		{"update", func() error {
			_, err := h.store.UpdateHostel(ctx, "1", models.HostelInput{Name: "A", Location: "B", Capacity: 1})
			return err
		}, MsgUpdateHostel},
		{"delete", func() error { return h.store.DeleteHostel(ctx, "1") }, MsgDeleteHostel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			assert.True(t, apperrors.Is(err, apperrors.ErrNetwork))
			assert.Equal(t, tt.want, h.store.State().Err)
		})
	}
}

func TestHostelStore_validationBlocksEverything(t *testing.T) {
	for _, online := range []bool{true, false} {
		h := newHarness(t, online)
		h.srv.ResetCalls()

		_, err := h.store.AddHostel(context.Background(), models.HostelInput{Name: "", Location: "B", Capacity: 1})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
		assert.Empty(t, h.srv.Calls())
		assert.Empty(t, h.queued(t))
		assert.Equal(t, StatusIdle, h.store.State().Status)
	}
}

func TestHostelStore_offlineQueuesWithoutRemoteCalls(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.srv.ResetCalls()

	var notified int
	unsubscribe := h.store.Subscribe(func(State) { notified++ })
	defer unsubscribe()

	added, err := h.store.AddHostel(ctx, models.HostelInput{Name: "A", Location: "Porto", Capacity: 4})
	require.NoError(t, err)
	assert.True(t, added.ID.IsZero())

	updated, err := h.store.UpdateHostel(ctx, "7", models.HostelInput{Name: "B", Location: "Faro", Capacity: 9})
	require.NoError(t, err)
	assert.Equal(t, models.ID("7"), updated.ID)

	require.NoError(t, h.store.DeleteHostel(ctx, "5"))

	assert.Empty(t, h.srv.Calls())
	actions := h.queued(t)
	require.Len(t, actions, 3)
	assert.Equal(t, models.ActionCreate, actions[0].Type)
	assert.Equal(t, models.ActionUpdate, actions[1].Type)
	assert.Equal(t, models.ActionDelete, actions[2].Type)

	state := h.store.State()
	assert.NotEqual(t, StatusLoading, state.Status)
	assert.Empty(t, state.Err)
	require.Len(t, state.Hostels, 1)
	assert.Equal(t, "A", state.Hostels[0].Name)
	assert.Equal(t, 3, notified)
}

type brokenQueue struct{}

func (brokenQueue) Enqueue(models.QueuedAction) error {
	return apperrors.Wrap(apperrors.ErrStorage, "failed to persist offline queue", errors.New("disk full"))
}

func TestHostelStore_offlineEnqueueFailure(t *testing.T) {
	conn := &switchable{}
	s := NewHostelStore(nil, conn, brokenQueue{})

	h, err := s.AddHostel(context.Background(), models.HostelInput{Name: "A", Location: "Porto", Capacity: 4})
	assert.True(t, apperrors.Is(err, apperrors.ErrStorage))
	require.NotNil(t, h)

	state := s.State()
	assert.Len(t, state.Hostels, 1, "optimistic change is applied anyway")
	assert.NotEqual(t, StatusError, state.Status)
}

func TestResync_offlineWritesReplayInOrder(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	existing := h.srv.SeedHostel(models.Hostel{Name: "Old", Location: "Braga", Capacity: 3})

	_, err := h.store.AddHostel(ctx, models.HostelInput{Name: "A", Location: "Porto", Capacity: 4})
	require.NoError(t, err)
	_, err = h.store.UpdateHostel(ctx, existing.ID, models.HostelInput{Name: "Old", Location: "Braga", Capacity: 10})
	require.NoError(t, err)
	require.NoError(t, h.store.DeleteHostel(ctx, existing.ID))
	assert.Empty(t, h.srv.Calls())

	h.conn.online.Store(true)
	result, err := h.engine.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Replayed)

	assert.Equal(t, []string{
		"POST /hostels",
		"PUT /hostels/" + existing.ID.String(),
		"DELETE /hostels/" + existing.ID.String(),
	}, callStrings(h.srv.Writes()))

	calls := h.srv.Calls()
	assert.Equal(t, "GET /hostels", calls[len(calls)-1].String(), "refetch follows the replay")

	assert.Empty(t, h.queued(t))
	state := h.store.State()
	require.Len(t, state.Hostels, 1)
	assert.Equal(t, "A", state.Hostels[0].Name)
	assert.False(t, state.Hostels[0].ID.IsZero(), "refetch replaces the optimistic record")
}

func TestResync_failedDeleteReappearsAfterRefetch(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	five := h.srv.SeedHostel(models.Hostel{ID: "5", Name: "Five", Location: "Porto", Capacity: 5})
	require.NoError(t, h.store.GetHostels(ctx))

	h.conn.online.Store(false)
	require.NoError(t, h.store.DeleteHostel(ctx, five.ID))
	assert.Empty(t, h.store.State().Hostels)

	h.srv.Fail("DELETE", "/hostels/5", http.StatusInternalServerError, "db down", 1)
	h.conn.online.Store(true)
	result, err := h.engine.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	assert.Empty(t, h.queued(t))
	state := h.store.State()
	require.Len(t, state.Hostels, 1)
	assert.Equal(t, models.ID("5"), state.Hostels[0].ID)
}
