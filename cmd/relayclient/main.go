// Command relayclient dials a relayserver instance, waits for its proxy
// to become available, and exercises both call and notify semantics
// against the "add" method, printing the round-trip result.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/codec/msgpackrpc"
	"github.com/fluxorio/relay/pkg/codec/nativecodec"
	"github.com/fluxorio/relay/pkg/core"
	relaymetrics "github.com/fluxorio/relay/pkg/observability/prometheus"
	relaytracing "github.com/fluxorio/relay/pkg/observability/tracing"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcproto"
	"github.com/fluxorio/relay/pkg/rpcproxy"
	"github.com/fluxorio/relay/pkg/transport"
)

func main() {
	network := flag.String("network", "unix", "unix or tcp")
	address := flag.String("address", "marshal_adder", "socket path for unix, host:port for tcp")
	codecName := flag.String("codec", "native", "native or msgpack")
	timeout := flag.Duration("timeout", 2*time.Second, "proxy call timeout")
	traceExporter := flag.String("trace-exporter", "", "stdout, jaeger, zipkin, or empty to disable tracing")
	traceEndpoint := flag.String("trace-endpoint", "", "collector endpoint for the jaeger/zipkin exporter")
	flag.Parse()

	logger := core.NewDefaultLogger()
	metrics := relaymetrics.NewMetrics(relaymetrics.DefaultRegisterer)

	tracerProvider, err := relaytracing.NewTracerProvider(context.Background(), relaytracing.ExporterConfig{
		Exporter:    *traceExporter,
		Endpoint:    *traceEndpoint,
		ServiceName: "relayclient",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayclient: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		tracerProvider.Shutdown(ctx)
	}()
	tracer := relaytracing.NewTracer("relayclient")

	r := reactor.NewReactor(reactor.ReactorOptions{MailboxSize: 256})
	r.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	}()

	newCodec, err := codecConstructor(*codecName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayclient: %v\n", err)
		os.Exit(1)
	}

	factory := rpcproto.NewFactory(r, nil, newCodec, logger)
	factory.SetMetrics(metrics)
	factory.SetTracer(tracer)

	var client *transport.Client
	switch *network {
	case "unix":
		client = transport.NewUnixClient(*address, factory, r, logger)
	case "tcp":
		host, port, herr := splitHostPort(*address)
		if herr != nil {
			fmt.Fprintf(os.Stderr, "relayclient: %v\n", herr)
			os.Exit(1)
		}
		client = transport.NewTCPClient(host, port, factory, r, logger)
	default:
		fmt.Fprintf(os.Stderr, "relayclient: unknown network %q\n", *network)
		os.Exit(1)
	}

	proto, err := client.Connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayclient: connect failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	proxyVal, err := proto.Proxy().Wait(*timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayclient: proxy unavailable: %v\n", err)
		os.Exit(1)
	}
	proxy := proxyVal.(*rpcproxy.Proxy)
	proxy.SetTimeout(*timeout)
	proxy.SetMetrics(metrics)
	proxy.SetTracer(tracer)

	result, err := proxy.Call("add", []interface{}{2, 3})
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayclient: call failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("add(2, 3) = %v\n", result)

	if err := proxy.Notify("add", []interface{}{4, 5}); err != nil {
		fmt.Fprintf(os.Stderr, "relayclient: notify failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("notify(add, 4, 5) sent")
}

func codecConstructor(name string) (func() codec.Codec, error) {
	switch name {
	case "", "native":
		return func() codec.Codec { return nativecodec.New() }, nil
	case "msgpack":
		return func() codec.Codec { return msgpackrpc.New() }, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (want native or msgpack)", name)
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid tcp address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid tcp port in %q: %w", addr, err)
	}
	return host, port, nil
}
