package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("STOCKLEDGER_INSTANCE_ID", "cron-a")
	assert.Equal(t, "cron-a", GetID())
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("STOCKLEDGER_INSTANCE_ID", "")
	assert.NotEmpty(t, GetID())
}
