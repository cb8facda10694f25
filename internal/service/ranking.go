package service

import (
	"context"
	"fmt"

	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/repository"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

// LeaderboardEntry is one ranked account.
type LeaderboardEntry struct {
	Rank                 int
	AccountID            int64
	LifetimeWins         int64
	FulfilledRewardCount int64
}

// RankingService ranks accounts by lifetime wins.
type RankingService struct {
	store repository.Store
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(store repository.Store) *RankingService {
	return &RankingService{store: store}
}

// TopWinners returns the leaderboard. Ties share a rank.
func (s *RankingService) TopWinners(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	limit = min(limit, maxLeaderboardSize)

	accounts, err := s.store.TopWinners(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top winners: %w", err)
	}
	return rankAccounts(accounts), nil
}

// rankAccounts assigns competition ranks (1, 2, 2, 4) to accounts already
// sorted by lifetime wins descending.
func rankAccounts(accounts []*model.Account) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(accounts))
	for i, acc := range accounts {
		rank := i + 1
		if i > 0 && acc.LifetimeWins == accounts[i-1].LifetimeWins {
			rank = out[i-1].Rank
		}
		out[i] = LeaderboardEntry{
			Rank:                 rank,
			AccountID:            acc.ID,
			LifetimeWins:         acc.LifetimeWins,
			FulfilledRewardCount: acc.FulfilledRewardCount,
		}
	}
	return out
}
