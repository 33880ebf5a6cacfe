package shared

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	require.Equal(t, 0.3, Round2(0.1+0.2))
	require.Equal(t, 33.33, Round2(100.0/3))
	require.Equal(t, 3.33, Round2(10.0/3))
	require.Equal(t, 1500.0, Round6(1500.0/1))
	require.Equal(t, 0.000667, Round6(1.0/1500))
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(SaleLockKey(1), ProductLockKey(2))
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
}

func TestKeyedMutexOverlappingKeySets(t *testing.T) {
	m := NewKeyedMutex()

	// Opposite declaration orders must not deadlock; Lock sorts internally.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := m.Lock(ProductLockKey(1), ProductLockKey(2))
			defer unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := m.Lock(ProductLockKey(2), ProductLockKey(1))
			defer unlock()
		}()
	}
	wg.Wait()
}

func TestKeyedMutexDeduplicatesKeys(t *testing.T) {
	m := NewKeyedMutex()
	unlock := m.Lock(SaleLockKey(1), SaleLockKey(1))
	unlock()
}

func TestSagaCompensatesInReverseOrder(t *testing.T) {
	var saga Saga
	var order []string

	saga.Record("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	saga.Record("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})
	saga.Compensate(context.Background(), nil)

	require.Equal(t, []string{"second", "first"}, order)
}

func TestSagaKeepsGoingAfterFailedCompensation(t *testing.T) {
	var saga Saga
	ran := false

	saga.Record("first", func(context.Context) error {
		ran = true
		return nil
	})
	saga.Record("second", func(context.Context) error {
		return errors.New("boom")
	})
	saga.Compensate(context.Background(), nil)

	require.True(t, ran)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 35)
	require.Equal(t, 2, p.Page)
	require.Equal(t, 4, p.TotalPages)

	p = NewPagination(0, 0, 5)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 10, p.PerPage)
	require.Equal(t, 1, p.TotalPages)
}
