package types

// TrialStatus is the lifecycle state of a trial subject.
// Happy-path ordering is active -> warned -> blocked -> pending_deletion -> deleted;
// any state may jump to paid when the business upgrades.
type TrialStatus string

const (
	TrialStatusActive          TrialStatus = "active"
	TrialStatusWarned          TrialStatus = "warned"
	TrialStatusBlocked         TrialStatus = "blocked"
	TrialStatusPendingDeletion TrialStatus = "pending_deletion"
	TrialStatusDeleted         TrialStatus = "deleted"
	TrialStatusPaid            TrialStatus = "paid"
)

// TrialIdentifierType describes what kind of key a trial subject is tracked by.
type TrialIdentifierType string

const (
	TrialIdentifierTypeBusiness TrialIdentifierType = "business"
	TrialIdentifierTypePhone    TrialIdentifierType = "phone"
)

// BlockReason is the machine-readable cause passed to the telephony adapter.
type BlockReason string

const (
	BlockReasonTrialCallsExhausted BlockReason = "trial_calls_exhausted"
	BlockReasonTrialExpired        BlockReason = "trial_expired"
	BlockReasonManual              BlockReason = "manual"
)

// Human-facing reasons stored on the trial row and echoed in API responses.
const (
	BlockReasonTextCallLimit = "call limit reached"
	BlockReasonTextExpired   = "trial expired"
)

// VoiceText returns the message spoken to callers of a blocked number.
func (r BlockReason) VoiceText() string {
	switch r {
	case BlockReasonTrialCallsExhausted:
		return "Nous sommes désolés, ce service est temporairement indisponible car la période d'essai est terminée. Veuillez contacter directement l'établissement. Merci et à bientôt."
	case BlockReasonTrialExpired:
		return "Nous sommes désolés, ce service est temporairement indisponible car la période d'essai a expiré. Veuillez contacter directement l'établissement. Merci et à bientôt."
	default:
		return "Nous sommes désolés, ce service est temporairement indisponible. Veuillez contacter directement l'établissement. Merci et à bientôt."
	}
}

// PhoneNumberStatus is the provisioning state of a tenant phone number.
type PhoneNumberStatus string

const (
	PhoneNumberStatusActive  PhoneNumberStatus = "ACTIVE"
	PhoneNumberStatusBlocked PhoneNumberStatus = "BLOCKED"
	PhoneNumberStatusPending PhoneNumberStatus = "PENDING"
	PhoneNumberStatusDeleted PhoneNumberStatus = "DELETED"
)

// SweepPriority classifies how urgently the next sweep run is needed.
type SweepPriority string

const (
	SweepPriorityHigh   SweepPriority = "high"
	SweepPriorityMedium SweepPriority = "medium"
	SweepPriorityLow    SweepPriority = "low"
)
