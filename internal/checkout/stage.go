package checkout

// Stage is the linear checkout flow. Once the commit succeeds there is no
// stepping backward.
type Stage string

const (
	StageAddress      Stage = "ADDRESS"
	StagePayment      Stage = "PAYMENT"
	StageConfirmation Stage = "CONFIRMATION"
)

func (s Stage) String() string {
	return string(s)
}

// CanTransitionTo allows only forward single-step moves plus a retreat from
// payment back to address while nothing has been committed.
func (s Stage) CanTransitionTo(next Stage) bool {
	switch s {
	case StageAddress:
		return next == StagePayment
	case StagePayment:
		return next == StageConfirmation || next == StageAddress
	case StageConfirmation:
		return false
	}
	return false
}
