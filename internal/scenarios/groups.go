package scenarios

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/apperrors"
)

const (
	opGroups             = "scenarios.groups"
	opGroup              = "scenarios.group"
	opUpdateGroup        = "scenarios.update_group"
	opDeleteGroup        = "scenarios.delete_group"
	opSyncGroupScenarios = "scenarios.sync_group_scenarios"
	opGroupsOf           = "scenarios.groups_of"
)

// GroupMembers is a group with its scenarios ordered by id.
type GroupMembers struct {
	Group     Group
	Scenarios []Scenario
}

// GroupUpdate renames or toggles a group. Nil fields keep their stored value.
type GroupUpdate struct {
	Name     *string
	IsActive *bool
}

type membershipRow struct {
	GroupID    uint
	ScenarioID uint
}

// Groups lists every group with its scenarios, oldest group first.
func (s *Service) Groups(ctx context.Context) ([]GroupMembers, error) {
	var groups []Group
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&groups).Error; err != nil {
		s.logError(opGroups, "query_failed", err)
		return nil, apperrors.New(opGroups, "query_failed", err)
	}
	return s.withMembers(ctx, opGroups, groups, "")
}

// Group loads one group with its scenarios.
func (s *Service) Group(ctx context.Context, groupID uint) (GroupMembers, error) {
	var group Group
	err := s.db.WithContext(ctx).Where("id = ?", groupID).Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GroupMembers{}, apperrors.New(opGroup, "group_missing", groupNotFound(groupID))
	}
	if err != nil {
		s.logError(opGroup, "query_failed", err, zap.Uint("group_id", groupID))
		return GroupMembers{}, apperrors.New(opGroup, "query_failed", err)
	}
	members, err := s.withMembers(ctx, opGroup, []Group{group}, "")
	if err != nil {
		return GroupMembers{}, err
	}
	return members[0], nil
}

// CreatorGroups lists the groups holding at least one scenario the user
// created. Each group carries only that user's scenarios.
func (s *Service) CreatorGroups(ctx context.Context, userID string) ([]GroupMembers, error) {
	var groups []Group
	if err := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&GroupScenario{}).
			Select("group_scenarios.group_id").
			Joins("JOIN scenarios ON scenarios.id = group_scenarios.scenario_id").
			Where("scenarios.created_by = ?", userID)).
		Order("id ASC").
		Find(&groups).Error; err != nil {
		s.logError(opGroups, "query_failed", err, zap.String("user_id", userID))
		return nil, apperrors.New(opGroups, "query_failed", err)
	}
	return s.withMembers(ctx, opGroups, groups, userID)
}

// UpdateGroup applies a GroupUpdate and returns the stored group.
func (s *Service) UpdateGroup(ctx context.Context, groupID uint, update GroupUpdate) (Group, error) {
	changes := make(map[string]any, 2)
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" || len(trimmed) > maxNameLength {
			return Group{}, apperrors.New(opUpdateGroup, "invalid_name", apperrors.ErrInvalidInput)
		}
		changes["name"] = trimmed
	}
	if update.IsActive != nil {
		changes["is_active"] = *update.IsActive
	}

	var group Group
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", groupID).Take(&group).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(opUpdateGroup, "group_missing", groupNotFound(groupID))
		}
		if err != nil {
			s.logError(opUpdateGroup, "query_failed", err, zap.Uint("group_id", groupID))
			return apperrors.New(opUpdateGroup, "query_failed", err)
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&Group{}).Where("id = ?", groupID).Updates(changes).Error; err != nil {
			s.logError(opUpdateGroup, "update_failed", err, zap.Uint("group_id", groupID))
			return apperrors.New(opUpdateGroup, "update_failed", err)
		}
		return tx.Where("id = ?", groupID).Take(&group).Error
	})
	if err != nil {
		return Group{}, err
	}
	return group, nil
}

// DeleteGroup removes a group and its memberships. Scenarios are kept.
func (s *Service) DeleteGroup(ctx context.Context, groupID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&GroupScenario{}).Error; err != nil {
			s.logError(opDeleteGroup, "memberships_delete_failed", err, zap.Uint("group_id", groupID))
			return apperrors.New(opDeleteGroup, "memberships_delete_failed", err)
		}
		result := tx.Where("id = ?", groupID).Delete(&Group{})
		if result.Error != nil {
			s.logError(opDeleteGroup, "delete_failed", result.Error, zap.Uint("group_id", groupID))
			return apperrors.New(opDeleteGroup, "delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.New(opDeleteGroup, "group_missing", groupNotFound(groupID))
		}
		return nil
	})
}

// SyncGroupScenarios replaces the membership of a group with exactly the
// given scenarios. Unknown scenario ids fail the whole sync.
func (s *Service) SyncGroupScenarios(ctx context.Context, groupID uint, scenarioIDs []uint) error {
	ids := slices.Clone(scenarioIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Group{}, groupID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(opSyncGroupScenarios, "group_missing", groupNotFound(groupID))
			}
			s.logError(opSyncGroupScenarios, "query_failed", err, zap.Uint("group_id", groupID))
			return apperrors.New(opSyncGroupScenarios, "query_failed", err)
		}
		if len(ids) > 0 {
			var found int64
			if err := tx.Model(&Scenario{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
				s.logError(opSyncGroupScenarios, "query_failed", err, zap.Uint("group_id", groupID))
				return apperrors.New(opSyncGroupScenarios, "query_failed", err)
			}
			if found != int64(len(ids)) {
				return apperrors.New(opSyncGroupScenarios, "scenario_missing",
					fmt.Errorf("%w: %d of %d scenarios exist", apperrors.ErrNotFound, found, len(ids)))
			}
		}

		if err := tx.Where("group_id = ?", groupID).Delete(&GroupScenario{}).Error; err != nil {
			s.logError(opSyncGroupScenarios, "memberships_delete_failed", err, zap.Uint("group_id", groupID))
			return apperrors.New(opSyncGroupScenarios, "memberships_delete_failed", err)
		}
		if len(ids) == 0 {
			return nil
		}
		links := make([]GroupScenario, 0, len(ids))
		for _, scenarioID := range ids {
			links = append(links, GroupScenario{GroupID: groupID, ScenarioID: scenarioID})
		}
		if err := tx.Create(&links).Error; err != nil {
			s.logError(opSyncGroupScenarios, "insert_failed", err, zap.Uint("group_id", groupID))
			return apperrors.New(opSyncGroupScenarios, "insert_failed", err)
		}
		return nil
	})
}

// GroupsOf maps each requested scenario to the groups it belongs to, ordered
// by group id. Scenarios without groups are absent.
func (s *Service) GroupsOf(ctx context.Context, scenarioIDs []uint) (map[uint][]Group, error) {
	result := make(map[uint][]Group)
	if len(scenarioIDs) == 0 {
		return result, nil
	}
	var rows []membershipRow
	if err := s.db.WithContext(ctx).
		Model(&GroupScenario{}).
		Select("group_id, scenario_id").
		Where("scenario_id IN ?", scenarioIDs).
		Order("group_id ASC").
		Scan(&rows).Error; err != nil {
		s.logError(opGroupsOf, "query_failed", err)
		return nil, apperrors.New(opGroupsOf, "query_failed", err)
	}
	if len(rows) == 0 {
		return result, nil
	}

	groupIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		groupIDs = append(groupIDs, row.GroupID)
	}
	slices.Sort(groupIDs)
	var groups []Group
	if err := s.db.WithContext(ctx).Where("id IN ?", slices.Compact(groupIDs)).Find(&groups).Error; err != nil {
		s.logError(opGroupsOf, "query_failed", err)
		return nil, apperrors.New(opGroupsOf, "query_failed", err)
	}
	byID := make(map[uint]Group, len(groups))
	for _, group := range groups {
		byID[group.ID] = group
	}
	for _, row := range rows {
		if group, ok := byID[row.GroupID]; ok {
			result[row.ScenarioID] = append(result[row.ScenarioID], group)
		}
	}
	return result, nil
}

// withMembers attaches scenarios to groups. A non-empty creator keeps only
// the scenarios that user created.
func (s *Service) withMembers(ctx context.Context, operation string, groups []Group, creator string) ([]GroupMembers, error) {
	members := make([]GroupMembers, len(groups))
	if len(groups) == 0 {
		return members, nil
	}
	groupIDs := make([]uint, len(groups))
	for index, group := range groups {
		groupIDs[index] = group.ID
		members[index] = GroupMembers{Group: group, Scenarios: make([]Scenario, 0)}
	}

	query := s.db.WithContext(ctx).
		Model(&GroupScenario{}).
		Select("group_scenarios.group_id, group_scenarios.scenario_id").
		Joins("JOIN scenarios ON scenarios.id = group_scenarios.scenario_id").
		Where("group_scenarios.group_id IN ?", groupIDs)
	if creator != "" {
		query = query.Where("scenarios.created_by = ?", creator)
	}
	var rows []membershipRow
	if err := query.Order("group_scenarios.scenario_id ASC").Scan(&rows).Error; err != nil {
		s.logError(operation, "members_query_failed", err)
		return nil, apperrors.New(operation, "members_query_failed", err)
	}

	scenarioIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		scenarioIDs = append(scenarioIDs, row.ScenarioID)
	}
	slices.Sort(scenarioIDs)
	found, err := FindScenarios(s.db.WithContext(ctx), slices.Compact(scenarioIDs))
	if err != nil {
		s.logError(operation, "members_query_failed", err)
		return nil, apperrors.New(operation, "members_query_failed", err)
	}
	byID := make(map[uint]Scenario, len(found))
	for _, scenario := range found {
		byID[scenario.ID] = scenario
	}

	position := make(map[uint]int, len(groups))
	for index, group := range groups {
		position[group.ID] = index
	}
	for _, row := range rows {
		if scenario, ok := byID[row.ScenarioID]; ok {
			index := position[row.GroupID]
			members[index].Scenarios = append(members[index].Scenarios, scenario)
		}
	}
	return members, nil
}
