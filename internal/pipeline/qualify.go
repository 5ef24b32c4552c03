package pipeline

// Qualified reports whether a lead earned a calendar slot. Both signals
// must be present: a meeting request without buying intent gets email
// follow-up instead, and intent without an ask is not a booking.
func Qualified(meetingRequest, hotLead bool) bool {
	return meetingRequest && hotLead
}
