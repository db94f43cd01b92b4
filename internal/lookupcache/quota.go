package lookupcache

// PeriodKey returns the calendar date of the current instant in the cache's
// fixed timezone.
func (c *Cache[V]) PeriodKey() string {
	return c.now().In(c.loc).Format(periodLayout)
}

// CheckQuota reports whether callerID may trigger another fresh lookup. A
// counter from an earlier period counts as zero; nothing is written.
func (c *Cache[V]) CheckQuota(callerID string) QuotaStatus {
	count := 0
	if counter, ok := c.quotas.Load(callerID); ok && counter.PeriodKey == c.PeriodKey() {
		count = counter.Count
	}
	return c.status(count)
}

// ConsumeQuota records one fresh lookup for callerID, resetting the counter
// first when the period rolled over. It never rejects; enforcing the limit is
// the caller's job.
func (c *Cache[V]) ConsumeQuota(callerID string) {
	c.quotas.Increment(callerID, c.PeriodKey())
}

// TryConsume atomically checks and consumes one unit of quota. Allowed is
// false, and nothing is consumed, when the caller is already at the limit.
// Remaining reflects the state after the call.
func (c *Cache[V]) TryConsume(callerID string) QuotaStatus {
	counter, ok := c.quotas.IncrementIfBelow(callerID, c.PeriodKey(), c.limit)
	if !ok {
		return QuotaStatus{Allowed: false, Remaining: 0}
	}
	return QuotaStatus{Allowed: true, Remaining: max(0, c.limit-counter.Count)}
}

// RefundQuota returns one unit consumed earlier in the current period, for
// lookups that failed before producing a result. A refund after the period
// rolled over is a no-op.
func (c *Cache[V]) RefundQuota(callerID string) QuotaStatus {
	counter := c.quotas.Release(callerID, c.PeriodKey())
	return c.status(counter.Count)
}

func (c *Cache[V]) status(count int) QuotaStatus {
	return QuotaStatus{Allowed: count < c.limit, Remaining: max(0, c.limit-count)}
}
