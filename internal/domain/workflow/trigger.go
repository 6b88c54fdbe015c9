package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit   Trigger = "SUBMIT"
	TriggerReview   Trigger = "REVIEW"
	TriggerApprove  Trigger = "APPROVE"
	TriggerReject   Trigger = "REJECT"
	TriggerWithdraw Trigger = "WITHDRAW"
	TriggerRevise   Trigger = "REVISE"
	TriggerDelete   Trigger = "DELETE"
	TriggerRestore  Trigger = "RESTORE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
