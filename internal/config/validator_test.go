package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePort(8787))
	assert.Error(t, v.ValidatePort(-1))

	assert.NoError(t, v.ValidatePrefix("/api/tools"))
	assert.NoError(t, v.ValidatePrefix(""))
	assert.Error(t, v.ValidatePrefix("api/tools"))

	for _, p := range []string{"", "openai", "anthropic"} {
		assert.NoError(t, v.ValidateProvider(p), p)
	}
	assert.Error(t, v.ValidateProvider("OpenAI"))

	assert.NoError(t, v.ValidateSchedule("@every 30s"))
	assert.NoError(t, v.ValidateSchedule("0 * * * *"))
	assert.Error(t, v.ValidateSchedule("@sometimes"))

	assert.NoError(t, v.ValidateLogLevel("WARN"))
	assert.Error(t, v.ValidateLogLevel("trace"))

	assert.NoError(t, v.ValidatePatterns(nil))
	assert.NoError(t, v.ValidatePatterns([]string{`acct_[0-9]{6}`}))
	assert.Error(t, v.ValidatePatterns([]string{`ok`, `(`}))
}
