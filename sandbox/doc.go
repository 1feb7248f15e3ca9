// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the two leaf components of a run: the
// Workspace, which writes each submission to a uniquely named file and
// removes it exactly once, and the DockerLauncher, which starts the
// container runtime CLI with network access disabled, memory and CPU
// ceilings, a read-only mount of the submitted file and a hard wall-clock
// timeout. A launched Process keeps stdin open and streams stdout and stderr
// to caller-supplied writers as the data arrives.
//
// Usage:
//
//	ws := sandbox.NewWorkspace(logger, cfg)
//	file, err := ws.Prepare(sandbox.Submission{Code: "print(input())"})
//	proc, err := sandbox.NewDockerLauncher(logger, cfg).Launch(ctx, file, stdout, stderr)
//	_ = proc.Write([]byte("hello\n"))
//	<-proc.Done()
//	fmt.Println(sandbox.DescribeExit(proc.Status()))
package sandbox
