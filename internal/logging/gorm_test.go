package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from users"))
	assert.Equal(t, "UPDATE", operationFromSQL(`UPDATE "users" SET credit = credit - 1`))
	assert.Equal(t, "INSERT", operationFromSQL("WITH x AS (1) INSERT INTO t VALUES (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
	assert.Equal(t, "UNKNOWN", operationFromSQL("PRAGMA journal_mode"))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)

	log, err := New("debug", "console")
	assert.NoError(t, err)
	assert.NotNil(t, log)
}
