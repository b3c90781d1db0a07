// Package steps runs the ordered build steps of a pipeline run.
//
// Steps execute strictly in order through the shell, blocking, with the
// checkout as working directory and the pipeline environment merged over the
// parent environment. The first non-zero exit halts the sequence; later steps
// never run and nothing is rolled back. Each executed step records its exit
// status, combined output and timing.
package steps
