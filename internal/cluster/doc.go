// Package cluster supervises a fixed-size pool of worker processes.
//
// Each logical worker position is a Slot with a stable id (0..N-1). The OS
// process backing a slot changes on every respawn, so the Supervisor keeps an
// identity index from OS pid to slot id and resolves every exit or message
// event through it.
//
// Workers report SignalAppStarted once their application is listening. When
// every configured slot has reported at least once, the Supervisor broadcasts
// SignalClusterHealthy to all live workers. Duplicate reports from a slot are
// counted once.
//
// A worker exiting with code 0 retires its slot. Any other exit schedules a
// respawn of the same slot after RestartPolicy.Delay, up to
// RestartPolicy.MaxAttempts consecutive crashes; after that the slot is
// abandoned and the pool stays one worker smaller.
//
// The Supervisor does not start processes or move bytes itself. Process
// creation goes through a Spawner and signal delivery through a Broadcaster:
//
//	sup := cluster.New(cluster.Options{
//	    Size:        4,
//	    Spawner:     forker,
//	    Broadcaster: bridge,
//	    Logger:      logging.GetLogger("cluster"),
//	})
//	forker.OnExit(sup.HandleExit)
//	bridge.OnSignal(sup.HandleMessage)
//	if err := sup.Start(); err != nil { ... }
//	defer sup.Stop()
package cluster
