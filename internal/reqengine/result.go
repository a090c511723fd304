package reqengine

// Result is the terminal outcome delivered to a request's callback exactly
// once.
type Result int

const (
	// Success means a response was received; Handle.Answer is populated.
	Success Result = iota
	// Timeout means the overall timer expired without a response.
	Timeout
	// Canceled means an explicit cancel, or an internal teardown, beat the
	// response.
	Canceled
	// Blackholed means the destination matched the blackhole ACL; nothing
	// was ever sent.
	Blackholed
	// FormErr means the wire buffer was smaller than a DNS header, larger
	// than 65535 bytes, or otherwise failed to render/register.
	FormErr
	// ShuttingDown means the engine was already exiting at registration
	// time.
	ShuttingDown
	// FamilyMismatch means the caller supplied both a source and
	// destination address and their families disagreed.
	FamilyMismatch
	// FamilyNotSupport means no default dispatch handle exists for the
	// destination's address family and no source address was given.
	FamilyNotSupport
	// RateLimited means the dispatcher's configured send-rate cap rejected
	// this request at admission; nothing was ever sent.
	RateLimited
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Canceled:
		return "canceled"
	case Blackholed:
		return "blackholed"
	case FormErr:
		return "formerr"
	case ShuttingDown:
		return "shutting-down"
	case FamilyMismatch:
		return "family-mismatch"
	case FamilyNotSupport:
		return "family-not-supported"
	case RateLimited:
		return "rate-limited"
	default:
		return "unknown"
	}
}
