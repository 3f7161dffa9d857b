// Package cli wires configuration, stores and the demo machine behind the
// gamestate command.
package cli
