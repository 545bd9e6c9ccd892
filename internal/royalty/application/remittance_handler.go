package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"royalty-engine/internal/audit"
	"royalty-engine/internal/eventing"
	royalty "royalty-engine/internal/royalty/domain"
)

const remittanceConsumer = "remittance-acknowledgement"

// RemittanceHandler applies payment acknowledgements and advances the cycle
// once every remittance was dispatched (invoiced) or settled (remitted).
type RemittanceHandler struct {
	settlements royalty.SettlementRepository
	manager     *CycleManager
	clock       Clock
	logger      *zap.Logger
}

// NewRemittanceHandler constructs the handler.
func NewRemittanceHandler(settlements royalty.SettlementRepository, manager *CycleManager, logger *zap.Logger) (*RemittanceHandler, error) {
	if settlements == nil {
		return nil, errors.New("remittance handler: nil settlement repository")
	}
	if manager == nil {
		return nil, errors.New("remittance handler: nil cycle manager")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemittanceHandler{settlements: settlements, manager: manager, clock: SystemClock{}, logger: logger}, nil
}

// Register subscribes the handler with idempotent delivery.
func (h *RemittanceHandler) Register(sub eventing.Subscriber, processed eventing.ProcessedStore) {
	eventing.Subscribe(sub, eventing.EventTypeOf[RemittanceAcknowledged](), remittanceConsumer, h.Handle, processed)
}

// Handle implements eventing.EventHandler.
func (h *RemittanceHandler) Handle(ctx context.Context, event any) error {
	var ack RemittanceAcknowledged
	switch e := event.(type) {
	case RemittanceAcknowledged:
		ack = e
	case *RemittanceAcknowledged:
		if e == nil {
			return eventing.ErrNilEvent
		}
		ack = *e
	default:
		return fmt.Errorf("%w: %T", eventing.ErrInvalidEventType, event)
	}
	return h.Apply(ctx, ack)
}

// Apply records the acknowledged remittance status and advances the cycle.
func (h *RemittanceHandler) Apply(ctx context.Context, ack RemittanceAcknowledged) error {
	if ack.RemittanceID == "" || ack.CycleID == "" {
		return royalty.ErrEmptyID
	}
	at := ack.OccurredAt
	if at.IsZero() {
		at = h.clock.Now()
	}
	if err := h.settlements.UpdateRemittanceStatus(ctx, ack.RemittanceID, ack.Status, ack.PaymentReference, at.UTC()); err != nil {
		return err
	}
	remittances, err := h.settlements.ListRemittances(ctx, ack.CycleID)
	if err != nil {
		return err
	}
	dispatched, settled := remittanceProgress(remittances)
	cycle, err := h.manager.Get(ctx, ack.CycleID)
	if err != nil {
		return err
	}
	actor := audit.System
	if dispatched && cycle.Status == royalty.CycleLocked {
		if cycle, err = h.manager.MarkInvoiced(ctx, cycle.ID, actor); err != nil {
			return err
		}
	}
	if settled && cycle.Status == royalty.CycleInvoiced {
		if _, err = h.manager.MarkRemitted(ctx, cycle.ID, actor); err != nil {
			return err
		}
	}
	h.logger.Info("remittance acknowledged",
		zap.String("event", "remittance.ack"),
		zap.String("remittance_id", ack.RemittanceID),
		zap.String("cycle_id", ack.CycleID),
		zap.String("status", string(ack.Status)),
	)
	return nil
}

// remittanceProgress reports whether all remittances left pending and
// whether all of them settled.
func remittanceProgress(remittances []royalty.PartnerRemittance) (bool, bool) {
	if len(remittances) == 0 {
		return false, false
	}
	dispatched, settled := true, true
	for _, r := range remittances {
		switch r.Status {
		case royalty.RemittanceSent:
			settled = false
		case royalty.RemittanceSettled:
		default:
			dispatched = false
			settled = false
		}
	}
	return dispatched, settled
}
