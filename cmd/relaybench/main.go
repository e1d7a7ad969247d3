// Command relaybench is a direct translation of the original whizzer
// project's examples/rpc_bench.py: it dials a marshal_adder-style Unix
// socket over the native codec, calls "add" 10000 times and reports
// calls/sec, then notifies "add" 10000 times and reports notifies/sec.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/codec/nativecodec"
	"github.com/fluxorio/relay/pkg/core"
	"github.com/fluxorio/relay/pkg/dispatch"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcproto"
	"github.com/fluxorio/relay/pkg/rpcproxy"
	"github.com/fluxorio/relay/pkg/transport"
)

const iterations = 10000

func main() {
	address := flag.String("address", "marshal_adder", "unix socket path of the adder server to benchmark")
	flag.Parse()

	logger := core.NewDefaultLogger()

	r := reactor.NewReactor(reactor.ReactorOptions{MailboxSize: 256})
	r.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	}()

	factory := rpcproto.NewFactory(r, dispatch.New(), func() codec.Codec { return nativecodec.New() }, logger)
	client := transport.NewUnixClient(*address, factory, r, logger)

	proto, err := client.Connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaybench: connect failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	proxyVal, err := proto.Proxy().Wait(2 * time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaybench: proxy unavailable: %v\n", err)
		os.Exit(1)
	}
	proxy := proxyVal.(*rpcproxy.Proxy)
	proxy.SetTimeout(2 * time.Second)

	callsPerSecond := timeit(iterations, func() {
		if _, err := proxy.Call("add", []interface{}{2, 3}); err != nil {
			fmt.Fprintf(os.Stderr, "relaybench: call failed: %v\n", err)
			os.Exit(1)
		}
	})
	fmt.Printf("Calls per second: %f\n", callsPerSecond)

	notifiesPerSecond := timeit(iterations, func() {
		if err := proxy.Notify("add", []interface{}{2, 3}); err != nil {
			fmt.Fprintf(os.Stderr, "relaybench: notify failed: %v\n", err)
			os.Exit(1)
		}
	})
	fmt.Printf("Notifies per second: %f\n", notifiesPerSecond)
}

// timeit runs fn n times and returns the achieved rate per second,
// mirroring rpc_bench.py's timeit.Timer(...).timeit(n) usage.
func timeit(n int, fn func()) float64 {
	start := time.Now()
	for i := 0; i < n; i++ {
		fn()
	}
	elapsed := time.Since(start)
	return float64(n) / elapsed.Seconds()
}
