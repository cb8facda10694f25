package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/repository"
)

func TestCollectAndWrite(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	_, err := store.SeedPromos(ctx, []model.PromoCode{{Code: "WELCOME", RewardWins: 5}})
	require.NoError(t, err)

	d, err := collect(ctx, store, 10, 10)
	require.NoError(t, err)
	require.Len(t, d.Promos, 1)

	var buf bytes.Buffer
	require.NoError(t, write(&buf, d))

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, 0, back["fund_balance"])
	assert.Contains(t, buf.String(), "code: WELCOME")
}
