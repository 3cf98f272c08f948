// Package process starts and stops the worker processes of a cluster.
//
// Process wraps os/exec for a single subprocess:
//   - Extra environment on top of the parent's
//   - Own process group, so terminal signals reach only the primary
//   - Graceful shutdown with SIGINT and configurable timeout
//   - Force kill of the process group if graceful shutdown times out
//   - Output streaming with pluggable log parsing
//
// Forker implements cluster.Spawner on top of Process:
//   - Spawn(slotID) re-executes the worker command with WID=slotID
//   - Exits are reported through an ExitCallback with the pid and exit code
//   - StopAll stops every worker and waits until their exits were reported
//
// Example usage:
//
//	forker := process.NewForker(&process.ForkerOptions{
//	    Command: []string{exe, "worker"},
//	    Env:     []string{"PORT=8080"},
//	})
//	sup := cluster.New(cluster.Options{Size: 4, Spawner: forker})
//	forker.OnExit(sup.HandleExit)
//	defer forker.StopAll()
package process
