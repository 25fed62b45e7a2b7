package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// TestValidateTableName_RejectsAttackCorpus covers invariant 7 (identifier
// safety): quote-breakout, statement-stacking, and comment-injection style
// table names are all rejected.
func TestValidateTableName_RejectsAttackCorpus(t *testing.T) {
	attacks := []string{
		`t; DROP TABLE u; --`,
		`t'; DELETE FROM u; --`,
		`t" OR "1"="1`,
		`t/*comment*/`,
		`t--comment`,
		`t UNION SELECT password FROM users`,
		``,
		`   `,
		"t\x00",
		"t\nname",
	}

	for _, name := range attacks {
		t.Run(name, func(t *testing.T) {
			err := engine.ValidateTableName(name)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrSecurity)
		})
	}
}

func TestValidateTableName_AcceptsValidNames(t *testing.T) {
	valid := []string{"t", "users", "user_events_2024", "_internal"}

	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, engine.ValidateTableName(name))
			assert.Equal(t, `"`+name+`"`, engine.EscapeIdentifier(name))
		})
	}
}

func TestValidateTableName_RejectsOversizedName(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}

	err := engine.ValidateTableName(string(long))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrSecurity)
}

func TestValidateCustomSQLPredicate_RejectsAttackCorpus(t *testing.T) {
	attacks := []string{
		`1=1; DROP TABLE u`,
		`(SELECT password FROM users)`,
		`1=1 UNION SELECT 1`,
		`x = 1 -- comment`,
		``,
	}

	for _, predicate := range attacks {
		t.Run(predicate, func(t *testing.T) {
			err := engine.ValidateCustomSQLPredicate(predicate)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrSecurity)
		})
	}
}

func TestValidateCustomSQLPredicate_AcceptsOrdinaryPredicate(t *testing.T) {
	require.NoError(t, engine.ValidateCustomSQLPredicate(`amount > 0 AND status = 'active'`))
}
