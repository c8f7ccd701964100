package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
)

func TestMemoryAlertStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAlertStore()

	a := &models.Alert{ID: "a1", Active: true, TradeIDs: []string{"t1"}}
	require.NoError(t, s.Save(ctx, a))
	require.NoError(t, s.Save(ctx, &models.Alert{ID: "a2", Active: true}))

	a.TradeIDs[0] = "mutated"
	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got.TradeIDs, "store keeps its own copy")

	require.NoError(t, s.Update(ctx, "a1", func(a *models.Alert) { a.Active = false }))
	got, _ = s.Get(ctx, "a1")
	assert.False(t, got.Active)

	assert.ErrorIs(t, s.Update(ctx, "nope", func(*models.Alert) {}), repository.ErrAlertNotFound)
	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrAlertNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a1", list[0].ID)

	require.NoError(t, s.Delete(ctx, "a1", "missing"))
	list, _ = s.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "a2", list[0].ID)
}

func TestMemoryAlertStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAlertStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprint(i)
			_ = s.Save(ctx, &models.Alert{ID: id})
			_ = s.Update(ctx, id, func(a *models.Alert) { a.Acknowledged = true })
			_, _ = s.List(ctx)
		}(i)
	}
	wg.Wait()

	list, _ := s.List(ctx)
	assert.Len(t, list, 50)
}

func TestRingDispatchLog(t *testing.T) {
	l := NewRingDispatchLog(3)
	assert.Empty(t, l.Recent(10))

	now := time.Now()
	for i := 0; i < 5; i++ {
		l.Append(models.DispatchRecord{AlertID: fmt.Sprint(i), Channel: "console", Success: true, Timestamp: now})
	}

	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"4", "3", "2"}, []string{recent[0].AlertID, recent[1].AlertID, recent[2].AlertID})

	two := l.Recent(2)
	require.Len(t, two, 2)
	assert.Equal(t, "4", two[0].AlertID)
}
