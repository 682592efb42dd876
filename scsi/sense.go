package scsi

// Retry-policy classification of a command outcome. SCSI overloads
// CHECK CONDITION for both transient and permanent faults; only the
// sense key tells them apart, so the mapping lives here in one place.
// Anything unrecognized is fatal, never retryable, so an unknown
// condition cannot loop forever.

type action int

const (
	actionFail action = iota
	actionSucceed
	actionRetry
	// actionRetryAfterTUR interposes a TEST UNIT READY before the
	// retry, giving a settling device a chance to finish.
	actionRetryAfterTUR
)

// classifyStatus maps a non-GOOD status without sense data to a retry
// action.
func classifyStatus(s Status) action {
	switch s {
	case StatusGood, StatusConditionMet:
		return actionSucceed
	case StatusBusy, StatusTaskSetFull:
		return actionRetry
	}
	return actionFail
}

// classifySense maps sense data to a retry action. The switch is
// closed over every sense key this package knows; adding a key to the
// enumeration means deciding its policy here.
func classifySense(sd SenseData) action {
	switch sd.Key {
	case KeyNoSense, KeyRecoveredError:
		// The command completed; the device is only reporting
		// that it had to work for it.
		return actionSucceed
	case KeyUnitAttention:
		// Reset or media change since the last command. The
		// condition clears on re-issue.
		return actionRetry
	case KeyNotReady:
		if sd.ASC == AscLogicalUnitNotReady && sd.ASCQ == AscqBecomingReady {
			return actionRetryAfterTUR
		}
		return actionFail
	case KeyMediumError, KeyHardwareError, KeyIllegalRequest,
		KeyDataProtect, KeyBlankCheck, KeyVendorSpecific,
		KeyCopyAborted, KeyAbortedCommand, KeyVolumeOverflow,
		KeyMiscompare:
		return actionFail
	}
	return actionFail
}
