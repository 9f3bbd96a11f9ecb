// Package testing provides standardised tests and benchmarks for storage engines
// that satisfy the engine.Engine interface.
//
// The package contains:
//   - engine_testing: a conformance suite covering reads, writes, expiration,
//     compaction, prefix search, persistence across restarts and capacity limits
//   - engine_benchmarks: throughput benchmarks for common operations
//
// Expiration is tested with a manually advanced Clock injected through
// engine.Options.Clock, so no test has to sleep.
//
// Example usage:
//
//	func Test(t *testing.T) {
//		enginetesting.RunEngineTests(t, "MyEngine", myengine.Open)
//	}
//
//	func Benchmark(b *testing.B) {
//		enginetesting.RunEngineBenchmarks(b, "MyEngine", myengine.Open)
//	}
package testing
