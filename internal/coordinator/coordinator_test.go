package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/storage/sqlite"
	"github.com/templedb/templedb/internal/types"
	"github.com/templedb/templedb/internal/workitem"
)

type fixture struct {
	store   *sqlite.Store
	coord   *Coordinator
	items   *workitem.Service
	project *types.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	project := &types.Project{Slug: "demo", Name: "Demo", DefaultBranch: "main"}
	require.NoError(t, store.CreateProject(ctx, project))

	return &fixture{
		store:   store,
		coord:   New(store),
		items:   workitem.New(store),
		project: project,
	}
}

func (f *fixture) addAgent(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.RegisterSession(context.Background(), &types.AgentSession{
		ID: id, AgentName: id, Status: types.SessionActive, AcceptingWork: true,
	}))
}

func (f *fixture) addItem(t *testing.T, title string, priority types.Priority) *types.WorkItem {
	t.Helper()
	item, err := f.items.Create(context.Background(), workitem.CreateOptions{
		ProjectID: f.project.ID, Title: title, Priority: priority,
	})
	require.NoError(t, err)
	return item
}

func TestRegisterAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.coord.RegisterAgent(ctx, &f.project.ID, "builder")
	require.NoError(t, err)
	assert.Len(t, session.ID, 36)
	assert.Equal(t, types.SessionActive, session.Status)
	assert.True(t, session.AcceptingWork)

	got, err := f.store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "builder", got.AgentName)

	_, err = f.coord.RegisterAgent(ctx, nil, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAssignExplicitSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "sess-a")
	item := f.addItem(t, "review the parser", types.PriorityHigh)

	assigned, err := f.coord.Assign(ctx, item.ID, "sess-a", false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAssigned, assigned.Status)
	require.NotNil(t, assigned.AssignedSessionID)
	assert.Equal(t, "sess-a", *assigned.AssignedSessionID)

	// The assignment lands in the agent's mailbox at the item's priority.
	messages, err := f.store.ListMessages(ctx, "sess-a", true)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, types.MsgWorkAssignment, messages[0].MessageType)
	assert.Equal(t, types.PriorityHigh, messages[0].Priority)
	require.NotNil(t, messages[0].WorkItemID)
	assert.Equal(t, item.ID, *messages[0].WorkItemID)
}

func TestAssignRejectsInactiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "sess-gone")
	require.NoError(t, f.store.EndSession(ctx, "sess-gone"))
	item := f.addItem(t, "stranded", types.PriorityMedium)

	_, err := f.coord.Assign(ctx, item.ID, "sess-gone", false)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAssignRequiresSessionOrAutoSelect(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, "unrouted", types.PriorityMedium)
	_, err := f.coord.Assign(context.Background(), item.ID, "", false)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAssignAutoSelectsLeastBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "sess-busy")
	f.addAgent(t, "sess-free")

	// Load sess-busy with one active item.
	first := f.addItem(t, "existing load", types.PriorityMedium)
	_, err := f.coord.Assign(ctx, first.ID, "sess-busy", false)
	require.NoError(t, err)

	item := f.addItem(t, "fresh work", types.PriorityMedium)
	assigned, err := f.coord.Assign(ctx, item.ID, "", true)
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedSessionID)
	assert.Equal(t, "sess-free", *assigned.AssignedSessionID)
}

func TestAssignAutoSelectNoAgents(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, "nobody home", types.PriorityMedium)
	_, err := f.coord.Assign(context.Background(), item.ID, "", true)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestDispatchPendingSpreadsLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "sess-a")
	f.addAgent(t, "sess-b")

	f.addItem(t, "urgent", types.PriorityCritical)
	f.addItem(t, "soon", types.PriorityHigh)
	f.addItem(t, "normal", types.PriorityMedium)
	f.addItem(t, "whenever", types.PriorityLow)

	dispatched, err := f.coord.DispatchPending(ctx, &f.project.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, dispatched)

	// Least-busy re-selection per item spreads work evenly.
	workloads, err := f.coord.AvailableAgents(ctx, &f.project.ID)
	require.NoError(t, err)
	require.Len(t, workloads, 2)
	assert.Equal(t, 2, workloads[0].ActiveWorkCount)
	assert.Equal(t, 2, workloads[1].ActiveWorkCount)

	// The critical item went out first.
	status := types.StatusAssigned
	items, err := f.items.List(ctx, types.WorkItemFilter{ProjectID: &f.project.ID, Status: &status})
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, types.PriorityCritical, items[0].Priority)
}

func TestDispatchPendingPriorityFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "sess-a")

	f.addItem(t, "urgent", types.PriorityCritical)
	f.addItem(t, "whenever", types.PriorityLow)

	critical := types.PriorityCritical
	dispatched, err := f.coord.DispatchPending(ctx, &f.project.ID, &critical)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)

	pending := types.StatusPending
	left, err := f.items.List(ctx, types.WorkItemFilter{ProjectID: &f.project.ID, Status: &pending})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, types.PriorityLow, left[0].Priority)
}

func TestDispatchPendingNoAgents(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, "waiting", types.PriorityMedium)

	dispatched, err := f.coord.DispatchPending(context.Background(), &f.project.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
}

func TestConvoyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "sess-a")

	i1 := f.addItem(t, "step one", types.PriorityMedium)
	i2 := f.addItem(t, "step two", types.PriorityMedium)

	// One item is already taken; auto-assign must skip it.
	_, err := f.coord.Assign(ctx, i1.ID, "sess-a", false)
	require.NoError(t, err)

	convoy, err := f.coord.Convoy(ctx, f.project.ID, "release", "ship it", []string{i1.ID, i2.ID})
	require.NoError(t, err)
	assert.Equal(t, types.ConvoyPlanned, convoy.Status)

	assigned, err := f.coord.StartConvoy(ctx, convoy.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, assigned)

	got, err := f.store.GetConvoy(ctx, convoy.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ConvoyActive, got.Status)
	assert.NotNil(t, got.StartedAt)

	second, err := f.items.Get(ctx, i2.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAssigned, second.Status)
}

func TestConvoyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, "lonely", types.PriorityMedium)

	_, err := f.coord.Convoy(ctx, f.project.ID, "", "x", []string{item.ID})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	_, err = f.coord.Convoy(ctx, f.project.ID, "empty", "x", nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestMetricsUtilization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAgent(t, "sess-a")
	f.addAgent(t, "sess-b")

	item := f.addItem(t, "only one busy", types.PriorityMedium)
	_, err := f.coord.Assign(ctx, item.ID, "sess-a", false)
	require.NoError(t, err)

	metrics, err := f.coord.Metrics(ctx, &f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Assigned)
	assert.Equal(t, 2, metrics.ActiveAgents)
	assert.Equal(t, 1, metrics.BusyAgents)
	assert.InDelta(t, 0.5, metrics.AgentUtilization, 1e-9)
}
