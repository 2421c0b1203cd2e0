// SPDX-License-Identifier: GPL-3.0-or-later

package closers_test

import (
	"errors"
	"testing"

	"github.com/ZhuChongjing/NetLabX/internal/closers"
	"github.com/stretchr/testify/assert"
)

func TestPoolClosesInReverseOrder(t *testing.T) {
	pool := &closers.Pool{}
	var order []string
	pool.AddFunc("first", func() error {
		order = append(order, "first")
		return nil
	})
	pool.AddFunc("second", func() error {
		order = append(order, "second")
		return nil
	})
	pool.AddFunc("third", func() error {
		order = append(order, "third")
		return nil
	})

	assert.NoError(t, pool.Close())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestPoolJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	pool := &closers.Pool{}
	pool.AddFunc("a", func() error { return errA })
	pool.AddFunc("ok", func() error { return nil })
	pool.AddFunc("b", func() error { return errB })

	err := pool.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestPoolCloseIsIdempotent(t *testing.T) {
	count := 0
	pool := &closers.Pool{}
	pool.AddFunc("counter", func() error {
		count++
		return nil
	})

	assert.NoError(t, pool.Close())
	assert.NoError(t, pool.Close())
	assert.Equal(t, 1, count)
}
