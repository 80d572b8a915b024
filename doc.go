// Package fleet keeps a fleet of per-tenant messaging bots alive.
//
// Each tenant owns a credential token for an external messaging platform.
// The package maintains exactly one live, long-polling Worker per tenant and
// keeps the running set in sync with tenant configuration stored elsewhere:
//
//   - Worker: owns one tenant's platform session and processes its inbound
//     text messages sequentially, asking a Completer for replies.
//   - Supervisor: runs a periodic reconciliation cycle that diffs the
//     desired tenant set (from a SnapshotSource) against the registry of
//     running Workers, stopping workers whose tenant disappeared or whose
//     token changed and starting workers for new tenants.
//
// # Quick Start
//
//	sup := fleet.NewSupervisor(fleet.SupervisorConfig{
//	    Source:    store,                     // tenant id -> token pairs
//	    Connector: &fleet.TelegramConnector{},
//	    Data:      store,                     // per-tenant system prompts
//	    Completer: llm.NewYandexGPT(),
//	})
//	sup.Run(ctx, 10*time.Second)
//
// Failures are isolated: a worker that cannot connect is retried on the
// next cycle, a worker whose session dies reports itself and is restarted,
// and a failed completion call becomes a fixed degraded reply to the end
// user. Nothing that happens inside one worker can take down the supervisor
// or another worker.
package fleet
