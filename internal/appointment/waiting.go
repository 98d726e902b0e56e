package appointment

// WaitingTime estimates minutes until a patient is seen: everyone ahead
// of them at the doctor's average consultation time. Zero for the head of
// the queue and for unconfirmed appointments with no number yet.
func WaitingTime(queueNumber, consultationTime int) int {
	if queueNumber < 1 {
		return 0
	}
	return (queueNumber - 1) * consultationTime
}
