package icp

// Observer receives a report after every ICP iteration.
type Observer interface {
	OnIteration(report IterationReport)
}

// ResultObserver is implemented by observers that also want the final result.
type ResultObserver interface {
	OnResult(result Result)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(report IterationReport)

// OnIteration calls f(report).
func (f ObserverFunc) OnIteration(report IterationReport) {
	f(report)
}
