package quorum

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robinbryce/redquorum/rediserr"
)

func TestMajority(t *testing.T) {
	tables := []struct {
		n    int
		want int
	}{
		{n: 1, want: 1},
		{n: 2, want: 2},
		{n: 3, want: 2},
		{n: 5, want: 3},
	}
	for _, table := range tables {
		assert.Equal(t, table.want, Majority(table.n))
	}
}

func TestFanOutCollectsAllResults(t *testing.T) {
	results := FanOut(context.Background(), 5, func(ctx context.Context, index int) (int, error) {
		if index == 2 {
			return 0, errors.New("boom")
		}
		return index * 10, nil
	})

	assert.Len(t, results, 5)
	assert.Error(t, results[2].Err)
	assert.Equal(t, 30, results[3].Value)
}

func TestRequireFailsBelowMajority(t *testing.T) {
	results := FanOut(context.Background(), 3, func(ctx context.Context, index int) (bool, error) {
		if index != 0 {
			return false, errors.New("down")
		}
		return true, nil
	})
	err := Require(results, "lock", "k")
	assert.ErrorIs(t, err, rediserr.ErrQuorumNotAchieved)
}
