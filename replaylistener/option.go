package replaylistener

import "github.com/songzhibin97/handlerchain/chain"

// ChainOption returns a chain.ChainOption that starts a ReplayListener
// bound to the chain once construction completes, wiring cfg's
// ReplayStore (or the chain's own failure store, if unset) without the
// caller needing to import this package's Start directly.
//
// *chain.HandlerChain already satisfies Replayer, so no adapter is needed.
func ChainOption(cfg Config) chain.ChainOption {
	return chain.WithReplayListener(func(c *chain.HandlerChain) (chain.Closer, error) {
		return Start(c, c.FailureStore(), cfg)
	})
}
