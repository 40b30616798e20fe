package epp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		code int
		want Outcome
	}{
		{"completed", CodeSuccess, OutcomeSuccess},
		{"action pending", CodeSuccessPending, OutcomeSuccess},
		{"top of success band", CodeSuccessEndingMax, OutcomeSuccess},
		{"command failed", CodeCommandFailed, OutcomeTransientFailure},
		{"command failed closing", CodeCommandFailedClose, OutcomeTransientFailure},
		{"session limit exceeded", CodeSessionLimit, OutcomeTransientFailure},
		{"authentication error", CodeAuthError, OutcomeAuthFailure},
		{"authentication error closing", CodeAuthErrorClose, OutcomeAuthFailure},
		{"object exists", CodeObjectExists, OutcomeBusinessFailure},
		{"object does not exist", CodeObjectNotExists, OutcomeBusinessFailure},
		{"status prohibits operation", CodeStatusProhibits, OutcomeBusinessFailure},
		{"unknown command", CodeUnknownCommand, OutcomeBusinessFailure},
		{"syntax error", CodeSyntaxError, OutcomeBusinessFailure},
		{"object auth error", CodeObjectAuthError, OutcomeBusinessFailure},
		{"below success band", 999, OutcomeProtocolFailure},
		{"above error band", 3000, OutcomeProtocolFailure},
		{"zero", 0, OutcomeProtocolFailure},
		{"negative", -1, OutcomeProtocolFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.code), "code %d", tt.code)
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "business_failure", OutcomeBusinessFailure.String())
	assert.Equal(t, "transient_failure", OutcomeTransientFailure.String())
	assert.Equal(t, "auth_failure", OutcomeAuthFailure.String())
	assert.Equal(t, "protocol_failure", OutcomeProtocolFailure.String())
}
