package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	OpFollow   = "follow"
	OpUnfollow = "unfollow"

	RepairAdded   = "added"
	RepairRemoved = "removed"
)

// GraphService maintains the follow relation. Each edge is stored twice, in
// the follower's Following and in the followee's Followers. Both follow and
// unfollow write the follower side first, so Following is the authoritative
// view and ReconcileFollowGraph repairs Followers from it.
type GraphService struct {
	repo     AccountRepository
	recorder Recorder
	logger   *zap.Logger
}

func NewGraphService(repo AccountRepository, recorder Recorder, logger *zap.Logger) *GraphService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphService{
		repo:     repo,
		recorder: recorder,
		logger:   logger.Named("graph"),
	}
}

// Follow adds the edge actor -> target. A duplicate follow is rejected with
// ErrAlreadyFollowing and leaves state unchanged.
func (s *GraphService) Follow(ctx context.Context, actor, target uuid.UUID) error {
	if actor == target {
		return ErrSelfFollow
	}

	follower, err := s.repo.GetAccountByID(ctx, actor)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetAccountByID(ctx, target); err != nil {
		return err
	}
	if follower.IsFollowing(target) {
		return ErrAlreadyFollowing
	}

	changed, err := s.repo.AddFollowing(ctx, actor, target)
	if err != nil {
		return err
	}
	if !changed {
		// A concurrent follow won the guarded push.
		return ErrAlreadyFollowing
	}

	// An unchanged mirror means it was already present, which is the state we want.
	if _, err := s.repo.AddFollower(ctx, target, actor); err != nil {
		return s.consistencyFailure(OpFollow, actor, target, err)
	}
	return nil
}

// Unfollow removes the edge actor -> target from both sides.
func (s *GraphService) Unfollow(ctx context.Context, actor, target uuid.UUID) error {
	if actor == target {
		return ErrSelfFollow
	}

	follower, err := s.repo.GetAccountByID(ctx, actor)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetAccountByID(ctx, target); err != nil {
		return err
	}
	if !follower.IsFollowing(target) {
		return ErrNotFollowing
	}

	changed, err := s.repo.RemoveFollowing(ctx, actor, target)
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotFollowing
	}

	if _, err := s.repo.RemoveFollower(ctx, target, actor); err != nil {
		return s.consistencyFailure(OpUnfollow, actor, target, err)
	}
	return nil
}

func (s *GraphService) consistencyFailure(op string, actor, target uuid.UUID, err error) error {
	cerr := &ConsistencyError{Op: op, Actor: actor, Target: target, Err: err}
	s.recorder.ConsistencyFailure(op)
	s.logger.Error("follow graph left one-sided",
		zap.Bool("fatal_consistency", true),
		zap.String("op", op),
		zap.String("actor_id", actor.String()),
		zap.String("target_id", target.String()),
		zap.Error(err),
	)
	return cerr
}

// IsFollowing reports whether actor follows target
func (s *GraphService) IsFollowing(ctx context.Context, actor, target uuid.UUID) (bool, error) {
	account, err := s.repo.GetAccountByID(ctx, actor)
	if err != nil {
		return false, err
	}
	return account.IsFollowing(target), nil
}

// ListFollowers returns summaries of the accounts following id, in list order
func (s *GraphService) ListFollowers(ctx context.Context, id uuid.UUID) ([]AccountSummary, error) {
	account, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(account.Followers))
	for _, f := range account.Followers {
		ids = append(ids, f.UserID)
	}
	return s.summaries(ctx, ids)
}

// ListFollowing returns summaries of the accounts id follows, in list order
func (s *GraphService) ListFollowing(ctx context.Context, id uuid.UUID) ([]AccountSummary, error) {
	account, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, account.FollowingIDs())
}

func (s *GraphService) summaries(ctx context.Context, ids []uuid.UUID) ([]AccountSummary, error) {
	accounts, err := s.repo.GetAccountsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	out := make([]AccountSummary, 0, len(ids))
	for _, id := range ids {
		// Dangling references are skipped; the repair job owns them.
		if a, ok := byID[id]; ok {
			out = append(out, a.Summary())
		}
	}
	return out, nil
}

// RepairResult reports one pass of ReconcileFollowGraph.
type RepairResult struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

type edge struct {
	follower uuid.UUID
	followee uuid.UUID
}

// ReconcileFollowGraph makes every Followers list mirror the Following lists.
// Candidates come from a full scan; each one is confirmed against a fresh read
// of the follower before the followee is changed, so edges written
// concurrently with the scan are not undone.
func (s *GraphService) ReconcileFollowGraph(ctx context.Context) (RepairResult, error) {
	var result RepairResult
	following := make(map[edge]struct{})
	followers := make(map[edge]struct{})

	err := s.repo.ScanAccounts(ctx, func(a *Account) error {
		result.Scanned++
		for _, f := range a.Following {
			following[edge{follower: a.ID, followee: f.UserID}] = struct{}{}
		}
		for _, f := range a.Followers {
			followers[edge{follower: f.UserID, followee: a.ID}] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for e := range following {
		if _, ok := followers[e]; ok {
			continue
		}
		follower, err := s.repo.GetAccountByID(ctx, e.follower)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				continue
			}
			return result, err
		}
		if !follower.IsFollowing(e.followee) {
			continue
		}
		changed, err := s.repo.AddFollower(ctx, e.followee, e.follower)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				s.logger.Warn("following references missing account",
					zap.String("follower_id", e.follower.String()),
					zap.String("followee_id", e.followee.String()))
				continue
			}
			return result, err
		}
		if changed {
			result.Added++
		}
	}

	for e := range followers {
		if _, ok := following[e]; ok {
			continue
		}
		follower, err := s.repo.GetAccountByID(ctx, e.follower)
		switch {
		case errors.Is(err, ErrAccountNotFound):
		case err != nil:
			return result, err
		case follower.IsFollowing(e.followee):
			continue
		}
		changed, err := s.repo.RemoveFollower(ctx, e.followee, e.follower)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				continue
			}
			return result, err
		}
		if changed {
			result.Removed++
		}
	}

	s.recorder.FollowRepaired(RepairAdded, result.Added)
	s.recorder.FollowRepaired(RepairRemoved, result.Removed)
	if result.Added > 0 || result.Removed > 0 {
		s.logger.Warn("follow graph repaired",
			zap.Int("scanned", result.Scanned),
			zap.Int("added", result.Added),
			zap.Int("removed", result.Removed))
	} else {
		s.logger.Debug("follow graph consistent", zap.Int("scanned", result.Scanned))
	}
	return result, nil
}
