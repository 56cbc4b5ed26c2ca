/*
Package log provides structured logging for Max built on zerolog.

All components log through a shared global logger configured once at process
startup via Init. Child loggers carry contextual fields (component,
workspace_id, installation_id, sync_id, task_id) so that log lines from the
federation, the RPC plane, and the sync executor can be correlated without
passing logger instances through every constructor.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("sync-executor")
	logger.Info().Str("sync_id", string(id)).Msg("drain loop started")

Console output (human-readable, colorized) is used when JSONOutput is false,
which is the default for interactive CLI sessions. Daemons log JSON.
*/
package log
