package repository_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withterm/term-sub003/internal/metrics"
	"github.com/withterm/term-sub003/internal/repository"
)

func TestInMemory_SaveLoadDelete(t *testing.T) {
	repo := repository.NewInMemory()

	doc := metrics.Document{ResultKey: "k1", Table: "users", ValidationResult: metrics.ValidationSuccess}
	require.NoError(t, repo.Save(doc))

	loaded, err := repo.Load("k1")
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)

	ok, err := repo.Exists("k1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Delete("k1"))

	_, err = repo.Load("k1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestQuery_FiltersAndOrders(t *testing.T) {
	repo := repository.NewInMemory()

	now := time.Now()

	require.NoError(t, repo.Save(metrics.Document{
		ResultKey: "a", Timestamp: now.Add(-2 * time.Hour), Tags: []string{"nightly"},
	}))
	require.NoError(t, repo.Save(metrics.Document{
		ResultKey: "b", Timestamp: now.Add(-1 * time.Hour), Tags: []string{"nightly", "pr"},
	}))
	require.NoError(t, repo.Save(metrics.Document{
		ResultKey: "c", Timestamp: now, Tags: []string{"pr"},
	}))

	results, err := repository.NewQuery(repo).WithTag("nightly").OrderBy(repository.OrderAscending).Execute()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ResultKey)
	assert.Equal(t, "b", results[1].ResultKey)

	limited, err := repository.NewQuery(repo).Limit(1).Execute()
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ResultKey, "default order is descending by timestamp")
}
