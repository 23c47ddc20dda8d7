package syncclient

import (
	"context"
	"testing"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/internal/cardstate"
	"github.com/bloomflowhq/bloomflow-backend/pkg/clock"
	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/bloomflowhq/bloomflow-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type e2eTxRunner struct {
	conn *gorm.DB
}

func (r *e2eTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}

// inProcessServer adapts the real card state service to the client transport,
// standing in for the HTTP API.
type inProcessServer struct {
	svc      cardstate.Service
	tenantID uuid.UUID
	mutated  chan struct{}
}

func (s *inProcessServer) Mutate(ctx context.Context, deliveryDate, sessionID string, m Mutation) (*models.OrderCardState, error) {
	row, err := s.svc.Upsert(ctx, cardstate.UpsertInput{
		TenantID:        s.tenantID,
		DeliveryDate:    deliveryDate,
		CardID:          m.CardID,
		Status:          m.Status,
		AssignedTo:      m.AssignedTo,
		AssignedBy:      m.AssignedBy,
		Notes:           m.Notes,
		SortOrder:       m.SortOrder,
		OriginSessionID: sessionID,
	})
	s.mutated <- struct{}{}
	return row, err
}

func (s *inProcessServer) Changes(ctx context.Context, deliveryDate string, since time.Time) (*cardstate.Feed, error) {
	return s.svc.Changes(ctx, cardstate.FeedQuery{
		TenantID:     s.tenantID,
		DeliveryDate: deliveryDate,
		Since:        since,
	})
}

func (s *inProcessServer) Snapshot(ctx context.Context, deliveryDate string) ([]models.OrderCardState, error) {
	return s.svc.Snapshot(ctx, s.tenantID, deliveryDate)
}

func (s *inProcessServer) waitMutations(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.mutated:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for mutation %d of %d", i+1, n)
		}
	}
}

func setupInProcessServer(t *testing.T) *inProcessServer {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS order_card_states (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  delivery_date TEXT NOT NULL,
  card_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'unassigned',
  assigned_to TEXT,
  assigned_by TEXT,
  notes TEXT,
  sort_order INTEGER NOT NULL DEFAULT 0,
  origin_session_id TEXT,
  updated_at DATETIME NOT NULL,
  created_at DATETIME,
  UNIQUE (tenant_id, delivery_date, card_id)
);`
	require.NoError(t, conn.Exec(schema).Error)

	svc, err := cardstate.NewService(cardstate.ServiceParams{
		Repo:           cardstate.NewRepository(conn),
		Tx:             &e2eTxRunner{conn: conn},
		Stamper:        clock.NewStamper(),
		LookbackWindow: 5 * time.Minute,
	})
	require.NoError(t, err)

	return &inProcessServer{
		svc:      svc,
		tenantID: uuid.New(),
		mutated:  make(chan struct{}, 64),
	}
}

type device struct {
	manager *Manager
	poller  *Poller
	changes chan []models.OrderCardState
}

func newDevice(t *testing.T, server *inProcessServer) *device {
	t.Helper()

	d := &device{changes: make(chan []models.OrderCardState, 16)}
	mgr, err := NewManager(ManagerParams{
		DeliveryDate:  "2026-08-20",
		Transport:     server,
		ProtectionTTL: 10 * time.Second,
		Logger:        testLogger(),
		OnChange:      func(rows []models.OrderCardState) { d.changes <- rows },
	})
	require.NoError(t, err)

	poller, err := NewPoller(PollerParams{
		Source:       server,
		Sink:         mgr,
		DeliveryDate: "2026-08-20",
		Interval:     2 * time.Second,
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	d.manager = mgr
	d.poller = poller
	return d
}

func (d *device) waitChange(t *testing.T) []models.OrderCardState {
	t.Helper()
	select {
	case view := <-d.changes:
		return view
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
		return nil
	}
}

func TestEndToEndPropagationBetweenDevices(t *testing.T) {
	server := setupInProcessServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceA := newDevice(t, server)
	deviceB := newDevice(t, server)
	deviceA.manager.Start(ctx)
	deviceB.manager.Start(ctx)

	// Both devices prime their watermarks before anyone writes.
	deviceA.poller.tick(ctx)
	deviceB.poller.tick(ctx)

	// Device A assigns a card.
	status := enums.CardStatusAssigned
	assignee := "rosa"
	deviceA.manager.ApplyLocal(ctx, Mutation{CardID: "order-77", Status: &status, AssignedTo: &assignee})
	deviceA.waitChange(t)
	server.waitMutations(t, 1)

	// Device B polls and sees the assignment.
	deviceB.poller.tick(ctx)
	viewB := deviceB.waitChange(t)
	require.Len(t, viewB, 1)
	assert.Equal(t, enums.CardStatusAssigned, viewB[0].Status)
	require.NotNil(t, viewB[0].AssignedTo)
	assert.Equal(t, "rosa", *viewB[0].AssignedTo)

	// The next poll delivers nothing new: the row was applied exactly once.
	deviceB.poller.tick(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, deviceB.changes)

	// Device A polls its own write back and drops the echo silently.
	deviceA.poller.tick(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, deviceA.changes)
	viewA := deviceA.manager.Snapshot()
	require.Len(t, viewA, 1)
	assert.Equal(t, enums.CardStatusAssigned, viewA[0].Status)

	// Device B responds with a note; it travels back to device A.
	note := "call before delivery"
	deviceB.manager.ApplyLocal(ctx, Mutation{CardID: "order-77", Notes: &note})
	deviceB.waitChange(t)
	server.waitMutations(t, 1)

	deviceA.poller.tick(ctx)
	viewA = deviceA.waitChange(t)
	require.Len(t, viewA, 1)
	require.NotNil(t, viewA[0].Notes)
	assert.Equal(t, "call before delivery", *viewA[0].Notes)

	cancel()
	deviceA.manager.Wait()
	deviceB.manager.Wait()
}

func TestEndToEndReorderBatchPropagates(t *testing.T) {
	server := setupInProcessServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceA := newDevice(t, server)
	deviceB := newDevice(t, server)
	deviceB.manager.Start(ctx)

	// Seed three cards through device A and let device B snapshot them.
	for i, card := range []string{"order-1", "order-2", "order-3"} {
		pos := i
		deviceA.manager.ApplyLocal(ctx, Mutation{CardID: card, SortOrder: &pos})
		deviceA.waitChange(t)
	}
	server.waitMutations(t, 3)

	require.NoError(t, deviceB.manager.Bootstrap(ctx))
	deviceB.waitChange(t)
	deviceB.poller.tick(ctx)

	// Device A drags order-3 to the front; the batcher coalesces the burst.
	batcher, err := NewReorderBatcher(50*time.Millisecond, deviceA.manager.ApplyReorder, testLogger())
	require.NoError(t, err)
	batcher.Queue("order-3", 0)
	batcher.Queue("order-1", 1)
	batcher.Queue("order-2", 2)
	require.NoError(t, batcher.Flush(ctx))
	deviceA.waitChange(t)
	server.waitMutations(t, 3)

	// Device B polls once and lands in the final order. Each applied row
	// fires a notification; the last one carries the settled view.
	deviceB.poller.tick(ctx)
	var viewB []models.OrderCardState
	for i := 0; i < 3; i++ {
		viewB = deviceB.waitChange(t)
	}
	require.Len(t, viewB, 3)
	assert.Equal(t, "order-3", viewB[0].CardID)
	assert.Equal(t, "order-1", viewB[1].CardID)
	assert.Equal(t, "order-2", viewB[2].CardID)

	cancel()
	deviceB.manager.Wait()
}
