package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Who may drive a given transition.
type transitionActor int

const (
	actorProvider transitionActor = iota
	actorRequester
	actorEitherParticipant
)

type transitionRule struct {
	from  []ExchangeStatus
	actor transitionActor
}

// The transition graph. requested is the initial status and is never a
// target; rejected, completed, and cancelled are terminal. Accept/reject
// belong to the provider, completion to the requester: the party granting
// access decides entry, the party receiving value confirms delivery.
var transitionRules = map[ExchangeStatus]transitionRule{
	StatusAccepted:  {from: []ExchangeStatus{StatusRequested}, actor: actorProvider},
	StatusRejected:  {from: []ExchangeStatus{StatusRequested}, actor: actorProvider},
	StatusCompleted: {from: []ExchangeStatus{StatusAccepted}, actor: actorRequester},
	StatusCancelled: {from: []ExchangeStatus{StatusRequested, StatusAccepted}, actor: actorEitherParticipant},
}

// authorizeTransition validates actor and precondition for moving the
// exchange to target. It never mutates anything.
func authorizeTransition(ex Exchange, actor uuid.UUID, target ExchangeStatus) error {
	if !ex.Participant(actor) {
		return fmt.Errorf("%w: not a participant of this exchange", ErrForbidden)
	}

	rule, ok := transitionRules[target]
	if !ok {
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, target)
	}

	switch rule.actor {
	case actorProvider:
		if actor != ex.ProviderID {
			return fmt.Errorf("%w: only the provider may %s this exchange", ErrForbidden, target)
		}
	case actorRequester:
		if actor != ex.RequesterID {
			return fmt.Errorf("%w: only the requester may mark this exchange %s", ErrForbidden, target)
		}
	}

	for _, from := range rule.from {
		if ex.Status == from {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move %s exchange to %s", ErrInvalidTransition, ex.Status, target)
}

// deletableStatus reports whether an exchange in the given status may be
// removed. Accepted exchanges must be cancelled or completed first;
// completed ones may be deleted for history cleanup.
func deletableStatus(status ExchangeStatus) bool {
	return status != StatusAccepted
}

// statusUpdate is the allow-listed PATCH body for a transition. Review
// fields are honoured only on completion.
type statusUpdate struct {
	Status  ExchangeStatus `json:"status"`
	Rating  *int           `json:"rating,omitempty"`
	Comment string         `json:"comment,omitempty"`
}

func (u statusUpdate) validate() error {
	if u.Status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidInput)
	}
	if u.Rating != nil || u.Comment != "" {
		if u.Status != StatusCompleted {
			return fmt.Errorf("%w: a review may only accompany completion", ErrInvalidInput)
		}
	}
	if u.Rating != nil && (*u.Rating < 1 || *u.Rating > 5) {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	if len(u.Comment) > 500 {
		return fmt.Errorf("%w: review comment exceeds 500 characters", ErrInvalidInput)
	}
	return nil
}

func (a *API) createExchange(ctx context.Context, actor uuid.UUID, skillID uuid.UUID) (Exchange, error) {
	orm := a.store.ORM.WithContext(ctx)

	var skill skillModel
	if err := orm.First(&skill, "id = ?", skillID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Exchange{}, fmt.Errorf("%w: skill %s", ErrNotFound, skillID)
		}
		return Exchange{}, err
	}

	if skill.OwnerID == actor {
		return Exchange{}, fmt.Errorf("%w: cannot request your own skill", ErrInvalidInput)
	}

	model := exchangeModel{
		ID:           uuid.New(),
		RequesterID:  actor,
		ProviderID:   skill.OwnerID,
		SkillID:      skill.ID,
		Status:       string(StatusRequested),
		ExchangeType: string(TypeBarter),
	}
	if skill.IsPaid {
		model.ExchangeType = string(TypePaid)
		model.Cost = skill.Price
	}

	if err := orm.Create(&model).Error; err != nil {
		return Exchange{}, err
	}

	exchange := model.toAPI()
	transitionsApplied.WithLabelValues(string(StatusRequested)).Inc()
	a.publishJSON(topicExchangeRequested, map[string]any{
		"exchange_id":  exchange.ID,
		"requester_id": exchange.RequesterID,
		"provider_id":  exchange.ProviderID,
		"skill_id":     exchange.SkillID,
	})
	return exchange, nil
}

// transitionStore is the storage surface one transition touches. The
// gorm implementation runs inside a transaction; the state machine logic
// itself never sees the database handle.
type transitionStore interface {
	Exchange(id uuid.UUID) (exchangeModel, error)
	SaveExchange(m *exchangeModel) error
	DeleteExchange(m *exchangeModel) error
	Workspace(exchangeID uuid.UUID) (workspaceModel, bool, error)
	CreateWorkspace(ws *workspaceModel) error
	SaveWorkspace(ws *workspaceModel) error
	ArchiveWorkspace(exchangeID uuid.UUID) error
	AddReputation(userID uuid.UUID, delta int) error
	AppendActivity(entry *activityModel) error
}

// applyTransition loads, authorizes, and commits one status change with
// its side effects against the store: accept activates the workspace,
// complete credits the provider once, cancel archives the workspace.
// The caller provides serialization per exchange.
func applyTransition(s transitionStore, actor uuid.UUID, exchangeID uuid.UUID, update statusUpdate, reputationIncrement int) (exchangeModel, error) {
	model, err := s.Exchange(exchangeID)
	if err != nil {
		return exchangeModel{}, err
	}

	if err := authorizeTransition(model.toAPI(), actor, update.Status); err != nil {
		return exchangeModel{}, err
	}

	model.Status = string(update.Status)
	if update.Status == StatusCompleted {
		model.ReviewRating = update.Rating
		model.ReviewComment = update.Comment
	}
	if err := s.SaveExchange(&model); err != nil {
		return exchangeModel{}, err
	}

	switch update.Status {
	case StatusAccepted:
		if err := activateWorkspace(s, model, actor); err != nil {
			return exchangeModel{}, err
		}
	case StatusCompleted:
		if err := s.AddReputation(model.ProviderID, reputationIncrement); err != nil {
			return exchangeModel{}, err
		}
	case StatusCancelled:
		if err := s.ArchiveWorkspace(model.ID); err != nil {
			return exchangeModel{}, err
		}
	}

	if err := recordStatusActivity(s, model, actor, update.Status); err != nil {
		return exchangeModel{}, err
	}
	return model, nil
}

// removeExchange deletes the exchange row after the participant and
// status checks. Dependent rows cascade with the delete.
func removeExchange(s transitionStore, actor uuid.UUID, exchangeID uuid.UUID) error {
	model, err := s.Exchange(exchangeID)
	if err != nil {
		return err
	}

	exchange := model.toAPI()
	if !exchange.Participant(actor) {
		return fmt.Errorf("%w: not a participant of this exchange", ErrForbidden)
	}
	if !deletableStatus(exchange.Status) {
		return fmt.Errorf("%w: cannot delete an accepted exchange, cancel or complete it first", ErrInvalidTransition)
	}
	return s.DeleteExchange(&model)
}

// changeExchangeStatus applies one transition with its side effects in a
// single transaction, serialized per exchange so concurrent attempts
// cannot both satisfy the precondition.
func (a *API) changeExchangeStatus(ctx context.Context, actor uuid.UUID, exchangeID uuid.UUID, update statusUpdate) (Exchange, error) {
	if err := update.validate(); err != nil {
		return Exchange{}, err
	}

	unlock := a.exchangeLocks.lock(exchangeID)
	defer unlock()

	var exchange Exchange
	err := a.store.ORM.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := applyTransition(&gormTransitionStore{tx: tx}, actor, exchangeID, update, a.config.ReputationIncrement)
		if err != nil {
			return err
		}
		exchange = model.toAPI()
		return nil
	})
	if err != nil {
		return Exchange{}, err
	}

	transitionsApplied.WithLabelValues(string(update.Status)).Inc()
	a.publishJSON(topicForStatus(update.Status), map[string]any{
		"exchange_id":  exchange.ID,
		"status":       exchange.Status,
		"requester_id": exchange.RequesterID,
		"provider_id":  exchange.ProviderID,
	})
	return exchange, nil
}

func (a *API) deleteExchange(ctx context.Context, actor uuid.UUID, exchangeID uuid.UUID) error {
	unlock := a.exchangeLocks.lock(exchangeID)
	defer unlock()

	// Workspaces, artifacts, activity, and messages cascade with the row;
	// participant histories are queries over exchanges, so both shrink
	// with this delete.
	err := a.store.ORM.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return removeExchange(&gormTransitionStore{tx: tx}, actor, exchangeID)
	})
	if err != nil {
		return err
	}

	a.publishJSON(topicExchangeDeleted, map[string]any{"exchange_id": exchangeID})
	return nil
}

// activateWorkspace creates the workspace on first acceptance, or
// reactivates an archived one, and records the ledger entry. Membership
// is the exchange pair by construction.
func activateWorkspace(s transitionStore, model exchangeModel, actor uuid.UUID) error {
	ws, found, err := s.Workspace(model.ID)
	if err != nil {
		return err
	}
	if !found {
		ws = workspaceModel{
			ID:         uuid.New(),
			ExchangeID: model.ID,
			Status:     string(WorkspaceActive),
		}
		if err := s.CreateWorkspace(&ws); err != nil {
			return err
		}
	} else {
		ws.Status = string(WorkspaceActive)
		if err := s.SaveWorkspace(&ws); err != nil {
			return err
		}
	}

	entry := activityModel{
		WorkspaceID: ws.ID,
		ActorID:     actor,
		Action:      ActionCreateWorkspace,
		Detail: toJSONMap(map[string]any{
			"exchange_id": model.ID.String(),
		}),
	}
	return s.AppendActivity(&entry)
}

func recordStatusActivity(s transitionStore, model exchangeModel, actor uuid.UUID, status ExchangeStatus) error {
	ws, found, err := s.Workspace(model.ID)
	if err != nil {
		return err
	}
	if !found {
		// No workspace yet (reject before acceptance); nothing to log.
		return nil
	}

	entry := activityModel{
		WorkspaceID: ws.ID,
		ActorID:     actor,
		Action:      ActionStatusUpdate,
		Detail: toJSONMap(map[string]any{
			"status": string(status),
			"at":     time.Now().UTC().Format(time.RFC3339),
		}),
	}
	return s.AppendActivity(&entry)
}

// gormTransitionStore adapts one open transaction to the transitionStore
// surface.
type gormTransitionStore struct {
	tx *gorm.DB
}

func (g *gormTransitionStore) Exchange(id uuid.UUID) (exchangeModel, error) {
	var model exchangeModel
	if err := g.tx.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return exchangeModel{}, fmt.Errorf("%w: exchange %s", ErrNotFound, id)
		}
		return exchangeModel{}, err
	}
	return model, nil
}

func (g *gormTransitionStore) SaveExchange(m *exchangeModel) error {
	return g.tx.Save(m).Error
}

func (g *gormTransitionStore) DeleteExchange(m *exchangeModel) error {
	return g.tx.Delete(m).Error
}

func (g *gormTransitionStore) Workspace(exchangeID uuid.UUID) (workspaceModel, bool, error) {
	var ws workspaceModel
	err := g.tx.First(&ws, "exchange_id = ?", exchangeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workspaceModel{}, false, nil
	}
	if err != nil {
		return workspaceModel{}, false, err
	}
	return ws, true, nil
}

func (g *gormTransitionStore) CreateWorkspace(ws *workspaceModel) error {
	return g.tx.Create(ws).Error
}

func (g *gormTransitionStore) SaveWorkspace(ws *workspaceModel) error {
	return g.tx.Save(ws).Error
}

func (g *gormTransitionStore) ArchiveWorkspace(exchangeID uuid.UUID) error {
	return g.tx.Model(&workspaceModel{}).
		Where("exchange_id = ?", exchangeID).
		Update("status", string(WorkspaceArchived)).Error
}

func (g *gormTransitionStore) AddReputation(userID uuid.UUID, delta int) error {
	return g.tx.Model(&userModel{}).
		Where("id = ?", userID).
		Update("reputation", gorm.Expr("reputation + ?", delta)).Error
}

func (g *gormTransitionStore) AppendActivity(entry *activityModel) error {
	return g.tx.Create(entry).Error
}
