package textgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgmax(t *testing.T) {
	assert.Equal(t, int64(2), argmax([]float32{0.1, -1, 3, 2.9}))
	assert.Equal(t, int64(0), argmax([]float32{1, 1, 1}))
}

func TestGreedyDecode_StopsAtEOS(t *testing.T) {
	script := []int64{7, 8, 1, 9}
	calls := 0
	next := func(tokens []int64) (int64, error) {
		tok := script[calls]
		calls++
		return tok, nil
	}

	out, err := greedyDecode(context.Background(), []int64{5}, 10, 1, next)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7, 8, 1}, out)
	assert.Equal(t, 3, calls)
}

func TestGreedyDecode_RespectsBudget(t *testing.T) {
	next := func(tokens []int64) (int64, error) { return int64(len(tokens)), nil }

	out, err := greedyDecode(context.Background(), []int64{0, 1}, 3, 99, next)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, out)

	// MaxLength below the prompt length leaves a non-positive budget
	out, err = greedyDecode(context.Background(), []int64{0, 1}, -4, 99, next)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, out)
}

func TestGreedyDecode_Errors(t *testing.T) {
	boom := errors.New("forward failed")
	_, err := greedyDecode(context.Background(), []int64{0}, 5, 1, func([]int64) (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = greedyDecode(ctx, []int64{0}, 5, 1, func([]int64) (int64, error) { return 2, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
