package main

import (
	"github.com/kailas-cloud/credits/internal/config"
	"github.com/kailas-cloud/credits/internal/metrics"
	chiTransport "github.com/kailas-cloud/credits/internal/transport/chi"
	natsTransport "github.com/kailas-cloud/credits/internal/transport/nats"
	"github.com/kailas-cloud/credits/internal/usecase/reconcile"
	"github.com/kailas-cloud/credits/internal/usecase/rules"
)

// paramSource turns a config parameter into a resolver source.
func paramSource(p config.ParamConfig) rules.Source {
	def := int64(0)
	if p.Default != nil {
		def = *p.Default
	}
	if len(p.Rules) == 0 {
		return rules.Fixed(def)
	}

	table := rules.Table{Default: def, Rules: make([]rules.Rule, 0, len(p.Rules))}
	for _, r := range p.Rules {
		table.Rules = append(table.Rules, rules.Rule{
			Users:  r.Users,
			Groups: r.Groups,
			Admin:  r.Admin,
			Value:  r.Value,
		})
	}
	return table
}

// postTickHooks builds the configured hook chain. bus is nil when NATS is off.
func postTickHooks(names []string, bus *natsTransport.Bus) reconcile.Hooks {
	hooks := make(reconcile.Hooks, 0, len(names))
	for _, name := range names {
		switch name {
		case config.HookMetrics:
			hooks = append(hooks, reconcile.Named{Name: name, Hook: metrics.Engine{}})
		case config.HookNATS:
			if bus != nil {
				hooks = append(hooks, reconcile.Named{Name: name, Hook: bus})
			}
		}
	}
	return hooks
}

func authTokens(tokens []config.TokenConfig) []chiTransport.Token {
	out := make([]chiTransport.Token, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, chiTransport.Token{Token: t.Token, User: t.User, Admin: t.Admin})
	}
	return out
}
