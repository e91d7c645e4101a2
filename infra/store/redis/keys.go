package redis

const defaultPrefix = "haulage:"

// counterKey returns {prefix}counter:{customerID}.
func (s *CounterStore) counterKey(customerID string) string {
	return s.prefix + "counter:" + customerID
}
