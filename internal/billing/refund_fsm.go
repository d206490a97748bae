package billing

// transitions is the only place refund request moves are defined.
var transitions = map[RequestStatus][]RequestStatus{
	RequestDraft:           {RequestPendingApproval, RequestApproved, RequestRejected, RequestCancelled},
	RequestPendingApproval: {RequestApproved, RequestRejected, RequestCancelled, RequestPaid},
	RequestApproved:        {RequestPaid, RequestCancelled},
}

// CheckTransition guards every refund request status change. pending_approval
// may go straight to paid only when allowDirectPay is set.
func CheckTransition(from, to RequestStatus, allowDirectPay bool) error {
	if from == RequestPendingApproval && to == RequestPaid && !allowDirectPay {
		return &InvalidTransitionError{From: from, To: to}
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}
