// Package couponrelay relays asynchronous coupon results to the clients
// waiting for them.
//
// A client asks a backend to issue or redeem a coupon and receives a request
// id. The backend finishes its work at some later time and submits the
// outcome. The client opens a connection for the same request id whenever it
// likes. The relay delivers the outcome exactly once, as soon as both the
// result and a live connection exist, whichever came first.
//
// # Quick Start
//
//	relay, err := couponrelay.New(
//	    couponrelay.WithPort(8080),
//	    couponrelay.WithIssueTopicPrefix("give-result/"),
//	    couponrelay.WithRedeemTopicPrefix("use-result/"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	relay.Start(ctx) // blocks until ctx is cancelled
//
// # Delivery
//
// Results are pushed on a destination built from a per-kind prefix and the
// request id, for example "give-result/abc". The built-in transport is a
// Server-Sent Events stream served at
// /v1/coupons/{kind}/results/{requestId}/stream. Additional transports, such
// as an external push gateway reached through [WithWebhook], receive the same
// pushes.
//
// # Cleanup
//
// Results nobody connects for, and connections nobody submits for, are
// evicted by a background sweep. See [WithSweepInterval] and
// [WithEvictionAge].
//
// # Embedding
//
// The relay can be used without its HTTP server: [Relay.Submit],
// [Relay.RegisterConnection] and [Relay.Subscribe] drive the same
// coordinator in-process.
package couponrelay
