package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	// RecordDrop counts an item that was discarded (bad payload, failed
	// write, full queue) and logs why.
	RecordDrop(reason string, err error, fields ...Field)
}

type Field struct {
	Key   string
	Value any
}
