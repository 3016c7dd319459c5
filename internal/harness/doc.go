// Package harness runs scripted sessions against the Fibonacci device.
//
// A scenario is a YAML file listing device and control-plane operations.
// Each run starts a fresh service on an in-memory host with a step clock,
// so the recorded trace and the final statistics listing are identical
// from run to run and can be compared against golden files.
//
// # Scenario Format
//
//	name: reread_and_reset
//	description: "Reads accumulate until reset"
//	step_ns: 1000
//	steps:
//	  - op: open
//	  - op: seek
//	    whence: start
//	    offset: 10
//	    expect: { position: 10 }
//	  - op: read
//	    expect: { value: 55 }
//	  - op: stats
//	    expect: { output: "10: 1000 / 1\n" }
//	  - op: reset
//	    input: "1"
//	  - op: close
//
// # Operations
//
//   - open, close: begin or end the session named by `session` (default "a")
//   - seek: move the cursor; whence is start, current, end or a raw integer
//   - read: read one value; `size` overrides the 8-byte buffer
//   - write: write `input` to the session
//   - stats, hint: read the result or reset attribute
//   - reset: write `input` to the reset attribute
//
// Errors are reported by code: busy, closed, short_buffer, not_found,
// permission, no_session. An error the step does not expect fails the
// scenario.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/busy.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
