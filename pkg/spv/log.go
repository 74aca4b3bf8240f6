package spv

import "github.com/btcsuite/btclog"

// Logger is the leveled logging surface the session expects, satisfied
// directly by btclog.Logger. Embedding applications call UseLogger (the
// btcsuite-ecosystem convention, mirrored by btcd/peer and btcd/rpcclient)
// instead of the session reaching for a package-global logger on its own.
type Logger = btclog.Logger

// UseLogger installs logger as the session's logger after construction,
// following the btcsuite convention (btcd/peer.UseLogger, etc.) of a
// disabled-by-default logger (btclog.Disabled, used until this is called)
// that the embedding application wires up.
func (s *Session) UseLogger(logger Logger) {
	s.log = logger
}
