package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// memoryTransitionStore holds the rows one transition touches, so the
// state machine's side effects can be asserted without a database.
type memoryTransitionStore struct {
	exchanges  map[uuid.UUID]exchangeModel
	workspaces map[uuid.UUID]workspaceModel
	reputation map[uuid.UUID]int
	activity   []activityModel
}

func newMemoryTransitionStore() *memoryTransitionStore {
	return &memoryTransitionStore{
		exchanges:  make(map[uuid.UUID]exchangeModel),
		workspaces: make(map[uuid.UUID]workspaceModel),
		reputation: make(map[uuid.UUID]int),
	}
}

func (m *memoryTransitionStore) Exchange(id uuid.UUID) (exchangeModel, error) {
	model, ok := m.exchanges[id]
	if !ok {
		return exchangeModel{}, fmt.Errorf("%w: exchange %s", ErrNotFound, id)
	}
	return model, nil
}

func (m *memoryTransitionStore) SaveExchange(model *exchangeModel) error {
	m.exchanges[model.ID] = *model
	return nil
}

func (m *memoryTransitionStore) DeleteExchange(model *exchangeModel) error {
	delete(m.exchanges, model.ID)
	delete(m.workspaces, model.ID)
	return nil
}

func (m *memoryTransitionStore) Workspace(exchangeID uuid.UUID) (workspaceModel, bool, error) {
	ws, ok := m.workspaces[exchangeID]
	return ws, ok, nil
}

func (m *memoryTransitionStore) CreateWorkspace(ws *workspaceModel) error {
	m.workspaces[ws.ExchangeID] = *ws
	return nil
}

func (m *memoryTransitionStore) SaveWorkspace(ws *workspaceModel) error {
	m.workspaces[ws.ExchangeID] = *ws
	return nil
}

func (m *memoryTransitionStore) ArchiveWorkspace(exchangeID uuid.UUID) error {
	ws, ok := m.workspaces[exchangeID]
	if ok {
		ws.Status = string(WorkspaceArchived)
		m.workspaces[exchangeID] = ws
	}
	return nil
}

func (m *memoryTransitionStore) AddReputation(userID uuid.UUID, delta int) error {
	m.reputation[userID] += delta
	return nil
}

func (m *memoryTransitionStore) AppendActivity(entry *activityModel) error {
	m.activity = append(m.activity, *entry)
	return nil
}

func (m *memoryTransitionStore) actions() []string {
	actions := make([]string, 0, len(m.activity))
	for _, entry := range m.activity {
		actions = append(actions, entry.Action)
	}
	return actions
}

func seedExchange(store *memoryTransitionStore, status ExchangeStatus) exchangeModel {
	model := exchangeModel{
		ID:           uuid.New(),
		RequesterID:  uuid.New(),
		ProviderID:   uuid.New(),
		SkillID:      uuid.New(),
		Status:       string(status),
		ExchangeType: string(TypeBarter),
	}
	store.exchanges[model.ID] = model
	return model
}

func TestApplyTransitionAcceptCreatesWorkspace(t *testing.T) {
	store := newMemoryTransitionStore()
	model := seedExchange(store, StatusRequested)

	got, err := applyTransition(store, model.ProviderID, model.ID, statusUpdate{Status: StatusAccepted}, 10)
	if err != nil {
		t.Fatalf("applyTransition() error = %v", err)
	}
	if got.Status != string(StatusAccepted) {
		t.Fatalf("status = %s, want accepted", got.Status)
	}

	ws, ok := store.workspaces[model.ID]
	if !ok {
		t.Fatal("accept did not create a workspace")
	}
	if ws.Status != string(WorkspaceActive) {
		t.Fatalf("workspace status = %s, want active", ws.Status)
	}

	actions := store.actions()
	if len(actions) != 2 || actions[0] != ActionCreateWorkspace || actions[1] != ActionStatusUpdate {
		t.Fatalf("activity actions = %v", actions)
	}
}

func TestApplyTransitionCompleteCreditsProviderOnce(t *testing.T) {
	store := newMemoryTransitionStore()
	model := seedExchange(store, StatusAccepted)
	store.workspaces[model.ID] = workspaceModel{
		ID:         uuid.New(),
		ExchangeID: model.ID,
		Status:     string(WorkspaceActive),
	}

	rating := 5
	update := statusUpdate{Status: StatusCompleted, Rating: &rating, Comment: "great session"}

	got, err := applyTransition(store, model.RequesterID, model.ID, update, 10)
	if err != nil {
		t.Fatalf("applyTransition() error = %v", err)
	}
	if got.ReviewRating == nil || *got.ReviewRating != 5 || got.ReviewComment != "great session" {
		t.Fatalf("review not persisted: %+v", got)
	}
	if store.reputation[model.ProviderID] != 10 {
		t.Fatalf("provider reputation = %d, want 10", store.reputation[model.ProviderID])
	}

	// A repeated completion fails the precondition and must not credit
	// the provider again.
	if _, err := applyTransition(store, model.RequesterID, model.ID, update, 10); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second completion error = %v, want ErrInvalidTransition", err)
	}
	if store.reputation[model.ProviderID] != 10 {
		t.Fatalf("provider reputation after retry = %d, want 10", store.reputation[model.ProviderID])
	}
}

func TestApplyTransitionCancelArchivesWorkspace(t *testing.T) {
	store := newMemoryTransitionStore()
	model := seedExchange(store, StatusAccepted)
	store.workspaces[model.ID] = workspaceModel{
		ID:         uuid.New(),
		ExchangeID: model.ID,
		Status:     string(WorkspaceActive),
	}

	if _, err := applyTransition(store, model.ProviderID, model.ID, statusUpdate{Status: StatusCancelled}, 10); err != nil {
		t.Fatalf("applyTransition() error = %v", err)
	}

	if store.workspaces[model.ID].Status != string(WorkspaceArchived) {
		t.Fatalf("workspace status = %s, want archived", store.workspaces[model.ID].Status)
	}
	if actions := store.actions(); len(actions) != 1 || actions[0] != ActionStatusUpdate {
		t.Fatalf("activity actions = %v", actions)
	}
}

func TestApplyTransitionRejectLeavesNoWorkspace(t *testing.T) {
	store := newMemoryTransitionStore()
	model := seedExchange(store, StatusRequested)

	if _, err := applyTransition(store, model.ProviderID, model.ID, statusUpdate{Status: StatusRejected}, 10); err != nil {
		t.Fatalf("applyTransition() error = %v", err)
	}

	if _, ok := store.workspaces[model.ID]; ok {
		t.Fatal("reject created a workspace")
	}
	if len(store.activity) != 0 {
		t.Fatalf("activity = %v, want none before a workspace exists", store.actions())
	}
}

func TestApplyTransitionUnknownExchange(t *testing.T) {
	store := newMemoryTransitionStore()
	_, err := applyTransition(store, uuid.New(), uuid.New(), statusUpdate{Status: StatusAccepted}, 10)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("applyTransition() error = %v, want ErrNotFound", err)
	}
}

func TestActivateWorkspaceReactivatesArchived(t *testing.T) {
	store := newMemoryTransitionStore()
	model := seedExchange(store, StatusRequested)
	store.workspaces[model.ID] = workspaceModel{
		ID:         uuid.New(),
		ExchangeID: model.ID,
		Status:     string(WorkspaceArchived),
	}

	if err := activateWorkspace(store, model, model.ProviderID); err != nil {
		t.Fatalf("activateWorkspace() error = %v", err)
	}
	if store.workspaces[model.ID].Status != string(WorkspaceActive) {
		t.Fatalf("workspace status = %s, want active", store.workspaces[model.ID].Status)
	}
}

func TestRemoveExchange(t *testing.T) {
	tests := []struct {
		name    string
		status  ExchangeStatus
		actor   func(m exchangeModel) uuid.UUID
		wantErr error
	}{
		{"requester deletes requested", StatusRequested, func(m exchangeModel) uuid.UUID { return m.RequesterID }, nil},
		{"provider deletes completed", StatusCompleted, func(m exchangeModel) uuid.UUID { return m.ProviderID }, nil},
		{"accepted is not deletable", StatusAccepted, func(m exchangeModel) uuid.UUID { return m.RequesterID }, ErrInvalidTransition},
		{"stranger may not delete", StatusRequested, func(exchangeModel) uuid.UUID { return uuid.New() }, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryTransitionStore()
			model := seedExchange(store, tt.status)

			err := removeExchange(store, tt.actor(model), model.ID)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("removeExchange() error = %v", err)
				}
				if _, ok := store.exchanges[model.ID]; ok {
					t.Fatal("exchange row still present after delete")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("removeExchange() error = %v, want %v", err, tt.wantErr)
			}
			if _, ok := store.exchanges[model.ID]; !ok {
				t.Fatal("exchange row deleted despite the refused delete")
			}
		})
	}
}

func TestRemoveExchangeUnknownID(t *testing.T) {
	store := newMemoryTransitionStore()
	if err := removeExchange(store, uuid.New(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("removeExchange() error = %v, want ErrNotFound", err)
	}
}
