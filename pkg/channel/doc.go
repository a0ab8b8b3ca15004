// Package channel owns the authenticated real-time connections to the
// upstream service.
//
// A Pool keeps at most one live Channel per account key. Concurrent Get
// calls for the same key share a single handshake; every Channel has one
// dispatcher goroutine that answers keep-alive pings and routes completion
// fragments to per-conversation Queues.
//
// Channels are reference counted. Get adds a borrower and Return removes
// one; the last Return closes the transport. When the transport fails the
// dispatcher removes the Channel from the Pool and fails every subscribed
// Queue with ErrChannelClosed so no consumer blocks forever.
//
//	dialer, _ := channel.NewWebsocketDialer(channel.DialerConfig{ProxyURL: proxyURL})
//	hs := channel.NewHandshaker(dialer, channel.HandshakerConfig{URL: wsURL})
//	pool := channel.NewPool()
//
//	ch, err := pool.Get(ctx, identity, hs.Open)
//	defer pool.Return(ch)
//	queue := pool.Subscribe(ch, chatID)
//	defer pool.Unsubscribe(chatID)
package channel
