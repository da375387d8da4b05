/*
Package ports defines the driven ports (interfaces) of the Parley runtime.

These interfaces decouple the core from external implementations, allowing the
runtime to work with various storage backends and bot definition sources.

# Key Interfaces

  - BotLoader: Loads the bot definition (e.g., from a YAML file or memory).
  - SessionStore: Persists and loads session snapshots.
  - DistributedLocker: Provides distributed locking for concurrent session access across replicas.
*/
package ports
