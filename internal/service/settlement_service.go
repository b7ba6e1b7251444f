package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gnan700/splitledger/internal/metrics"
	"github.com/gnan700/splitledger/internal/models"
)

// SettlementService records transfers that pay down debts.
type SettlementService struct {
	*core
}

// NewSettlement is a request to record a settlement. The direction is taken
// exactly as given: FromUserID paid ToUserID.
type NewSettlement struct {
	GroupID     string
	FromUserID  string
	ToUserID    string
	Amount      decimal.Decimal
	Description string
}

// Record validates and appends a settlement.
func (s *SettlementService) Record(ctx context.Context, req NewSettlement) (*models.Settlement, error) {
	slog.Info("RecordSettlement request received",
		"group_id", req.GroupID,
		"from_user_id", req.FromUserID,
		"to_user_id", req.ToUserID,
		"amount", req.Amount.String(),
	)

	settlement, err := s.record(ctx, req)
	if err != nil {
		logFailure("RecordSettlement", err, "group_id", req.GroupID)
		return nil, err
	}

	metrics.SettlementsRecorded.Inc()
	slog.Info("Settlement recorded", "settlement_id", settlement.ID, "group_id", req.GroupID)
	return settlement, nil
}

func (s *SettlementService) record(ctx context.Context, req NewSettlement) (*models.Settlement, error) {
	if req.GroupID == "" {
		return nil, invalidf("group_id is required")
	}
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.FromUserID != "" && req.FromUserID == req.ToUserID {
		return nil, invalidf("from_user_id and to_user_id must differ")
	}

	unlock := s.locks.lock(req.GroupID)
	defer unlock()

	group, err := s.getGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if err := checkMembers(group, "from_user_id", req.FromUserID); err != nil {
		return nil, err
	}
	if err := checkMembers(group, "to_user_id", req.ToUserID); err != nil {
		return nil, err
	}

	settlement := &models.Settlement{
		GroupID:     req.GroupID,
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.store.CreateSettlement(ctx, settlement); err != nil {
		return nil, storeErr("create settlement", "group", req.GroupID, err)
	}
	s.invalidate(ctx, req.GroupID)
	return settlement, nil
}

// List returns a group's settlements, oldest first.
func (s *SettlementService) List(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	unlock := s.locks.rlock(groupID)
	defer unlock()

	if _, err := s.getGroup(ctx, groupID); err != nil {
		logFailure("ListSettlements", err, "group_id", groupID)
		return nil, err
	}
	settlements, err := s.store.ListSettlementsByGroup(ctx, groupID)
	if err != nil {
		slog.Error("ListSettlements failed", "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return settlements, nil
}
