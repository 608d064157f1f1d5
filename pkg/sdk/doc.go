// Package credits embeds the credit reconciliation engine in a Go process
// backed by Valkey, Redis or SQLite.
//
// The host process reports user logins and lease state; the client grants
// credits up to each user's cap and bills running leases on every tick,
// asking the Stopper to stop leases the owner can no longer afford.
//
//	client, _ := credits.New(ctx,
//	    credits.WithSQLite("credits.db"),
//	    credits.WithStopper(credits.StopperFunc(stopSession)),
//	)
//	defer client.Close()
//
//	_ = client.Login(ctx, credits.User{Name: "alice"})
//	client.Leases().Upsert(credits.Lease{ID: "s1", Owner: "alice", Running: true, Ready: true,
//	    BillingValue: 5, BillingInterval: time.Minute})
//	_ = client.Start(ctx)
//
//	c, _ := client.Balance(ctx, "alice")
package credits
