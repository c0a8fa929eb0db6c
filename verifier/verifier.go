// Package verifier implements the contract-checking layer of the datapath
// core. Every public entry point of the queue and ring subsystem verifies its
// preconditions here before touching any state.
//
// A failed check is a programming error in the driver or the framework, not
// an environmental condition, and is never reported as a recoverable error:
// Report logs the failure code and panics. Callers are not expected to
// recover; an inconsistent ring is unsafe to keep operating.
package verifier

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FailureCode identifies the violated contract. The code is carried in the
// panic value so crash handlers can classify the failure.
type FailureCode uint32

const (
	FailureCodeCorruptedContext FailureCode = iota + 1
	FailureCodeWrongGoroutine
	FailureCodeQueueAlreadyCreated
	FailureCodeInvalidQueueConfiguration
	FailureCodeInvalidQueueState
	FailureCodeInvalidExtensionName
	FailureCodeInvalidExtensionVersion
	FailureCodeInvalidExtensionAlignment
	FailureCodeInvalidExtensionSize
	FailureCodeExtensionVersionedSizeMismatch
	FailureCodeExtensionNotResolved
	FailureCodeNotPowerOfTwo
	FailureCodeInvalidTxCapabilities
	FailureCodeInvalidRxCapabilities
	FailureCodeInvalidLsoCapabilities
	FailureCodeInvalidDatapathCallbacks
	FailureCodeAdapterNotOperational
	FailureCodeRingStorageMissing
	FailureCodeRingOverrun
)

func (f FailureCode) String() string {
	switch f {
	case FailureCodeCorruptedContext:
		return "corrupted creation context"
	case FailureCodeWrongGoroutine:
		return "creation context used from wrong goroutine"
	case FailureCodeQueueAlreadyCreated:
		return "creation context already consumed"
	case FailureCodeInvalidQueueConfiguration:
		return "invalid queue configuration"
	case FailureCodeInvalidQueueState:
		return "operation invalid in current queue state"
	case FailureCodeInvalidExtensionName:
		return "invalid packet extension name"
	case FailureCodeInvalidExtensionVersion:
		return "invalid packet extension version"
	case FailureCodeInvalidExtensionAlignment:
		return "invalid packet extension alignment"
	case FailureCodeInvalidExtensionSize:
		return "invalid packet extension size"
	case FailureCodeExtensionVersionedSizeMismatch:
		return "reserved packet extension size does not match its version"
	case FailureCodeExtensionNotResolved:
		return "packet extension not part of the resolved set"
	case FailureCodeNotPowerOfTwo:
		return "value must be a power of two"
	case FailureCodeInvalidTxCapabilities:
		return "invalid adapter tx capabilities"
	case FailureCodeInvalidRxCapabilities:
		return "invalid adapter rx capabilities"
	case FailureCodeInvalidLsoCapabilities:
		return "invalid lso capabilities"
	case FailureCodeInvalidDatapathCallbacks:
		return "invalid datapath callbacks"
	case FailureCodeAdapterNotOperational:
		return "adapter is not in an operational power state"
	case FailureCodeRingStorageMissing:
		return "ring storage is nil"
	case FailureCodeRingOverrun:
		return "ring cursor advanced past its bound"
	}
	return fmt.Sprintf("failure code %d", uint32(f))
}

// Violation is the panic value raised by Report.
type Violation struct {
	Code   FailureCode
	Detail string
}

func (v Violation) Error() string {
	if v.Detail == "" {
		return v.Code.String()
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Detail)
}

// Report logs the contract violation and halts the component by panicking.
// It never returns.
func Report(l logrus.FieldLogger, code FailureCode, format string, args ...any) {
	v := Violation{Code: code, Detail: fmt.Sprintf(format, args...)}
	if l != nil {
		l.WithField("failureCode", uint32(code)).Error(v.Error())
	}
	panic(v)
}

// Verify panics with the given failure code unless cond holds.
func Verify(l logrus.FieldLogger, cond bool, code FailureCode, format string, args ...any) {
	if !cond {
		Report(l, code, format, args...)
	}
}

// IsPowerOfTwo reports whether v is a nonzero power of two.
func IsPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// VerifyPowerOfTwo panics with FailureCodeNotPowerOfTwo unless v is a
// nonzero power of two.
func VerifyPowerOfTwo(l logrus.FieldLogger, v uint32, what string) {
	if !IsPowerOfTwo(v) {
		Report(l, FailureCodeNotPowerOfTwo, "%s: %d", what, v)
	}
}
