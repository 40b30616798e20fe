package epp

// Registry result codes. The positive range is contiguous; failure codes are
// individually meaningful and the ones this core branches on are named.
const (
	CodeSuccess          = 1000
	CodeSuccessPending   = 1001
	CodeSuccessEndingMax = 1999

	CodeUnknownCommand     = 2000
	CodeSyntaxError        = 2001
	CodeUseError           = 2002
	CodeAuthError          = 2200
	CodeObjectAuthError    = 2201
	CodeObjectExists       = 2302
	CodeObjectNotExists    = 2303
	CodeStatusProhibits    = 2304
	CodeCommandFailed      = 2400
	CodeCommandFailedClose = 2500
	CodeAuthErrorClose     = 2501
	CodeSessionLimit       = 2502
)

// Classify maps a registry result code to an outcome. It is a pure
// range/table lookup; session-level conditions (timeouts, framing errors)
// never reach it.
//
//   - 1000-1999: success range
//   - 2400/2500: command failed due to server condition - retryable on a
//     fresh session
//   - 2502: too many sessions - retryable after backoff
//   - 2200/2501: credential rejection - forces re-login
//   - remaining 2xxx: definitive business decisions, surfaced verbatim
//   - anything else: not a code this protocol emits - protocol failure
func Classify(code int) Outcome {
	switch {
	case code >= CodeSuccess && code <= CodeSuccessEndingMax:
		return OutcomeSuccess
	case code == CodeCommandFailed, code == CodeCommandFailedClose, code == CodeSessionLimit:
		return OutcomeTransientFailure
	case code == CodeAuthError, code == CodeAuthErrorClose:
		return OutcomeAuthFailure
	case code >= 2000 && code <= 2599:
		return OutcomeBusinessFailure
	default:
		return OutcomeProtocolFailure
	}
}
