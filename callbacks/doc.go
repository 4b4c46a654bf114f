// Package callbacks provides the handlers of the chain invocation events:
// printing, logging, counting, and forwarding to several handlers.
package callbacks
