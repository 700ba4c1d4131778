/*
Package ports defines the driven ports (interfaces) for the stepflow runtime.

These interfaces decouple the core logic from external implementations,
allowing the runtime to work with various progress stores, record stores,
mail senders, and schedulers.

# Key Interfaces

  - ProgressStore: persists in-progress NavigationState for resume.
  - LeadStore: the keyed-record store for leads and conversion events.
  - DispatchStore: persistence for queued webhook dispatches.
  - Mailer: confirmation email collaborator (best-effort).
  - WakeScheduler / DispatcherWaker: the capped wake-up trigger for the
    external dispatcher.
*/
package ports
