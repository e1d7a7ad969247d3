// Command relayserver runs an RPC server modeled on the rpc_bench.py
// fixture's "marshal_adder" listener: a synchronous "add" method (plus
// the pool-backed "slow_add" and "batch_add" methods), reachable over a
// Unix-domain or TCP stream socket, with either wire codec. It is the
// server half of this module's rpc-bench example pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/codec/msgpackrpc"
	"github.com/fluxorio/relay/pkg/codec/nativecodec"
	"github.com/fluxorio/relay/pkg/config"
	"github.com/fluxorio/relay/pkg/core"
	"github.com/fluxorio/relay/pkg/core/concurrency"
	"github.com/fluxorio/relay/pkg/dispatch"
	relaymetrics "github.com/fluxorio/relay/pkg/observability/prometheus"
	relaytracing "github.com/fluxorio/relay/pkg/observability/tracing"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcproto"
	"github.com/fluxorio/relay/pkg/transport"
)

// ServerConfig is relayserver's config.yaml/.json shape, loadable via
// config.LoadWithEnv with the RELAY_ prefix (e.g. RELAY_NETWORK=tcp).
type ServerConfig struct {
	Network     string `yaml:"network"`
	Address     string `yaml:"address"`
	Codec       string `yaml:"codec"`
	MailboxSize int    `yaml:"mailbox_size"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Network:     "unix",
		Address:     "marshal_adder",
		Codec:       "native",
		MailboxSize: 1024,
		MetricsAddr: ":9101",
	}
}

func main() {
	cfgPath := flag.String("config", "", "path to a YAML/JSON config file (optional)")
	network := flag.String("network", "", "unix or tcp (overrides config)")
	address := flag.String("address", "", "listen address: socket path for unix, host:port for tcp (overrides config)")
	codecName := flag.String("codec", "", "native or msgpack (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on (overrides config)")
	traceExporter := flag.String("trace-exporter", "", "stdout, jaeger, zipkin, or empty to disable tracing")
	traceEndpoint := flag.String("trace-endpoint", "", "collector endpoint for the jaeger/zipkin exporter")
	flag.Parse()

	cfg := defaultServerConfig()
	if *cfgPath != "" {
		if err := config.LoadWithEnv(*cfgPath, "RELAY", &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "relayserver: %v\n", err)
			os.Exit(1)
		}
	}
	if *network != "" {
		cfg.Network = *network
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *codecName != "" {
		cfg.Codec = *codecName
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	reg := config.NewRegistry(&cfg)
	reg.Use(config.NotEmpty("Address", "Codec"))
	reg.Use(config.OneOf("Network", "unix", "tcp"))
	reg.Use(config.OneOf("Codec", "native", "msgpack"))
	reg.Use(config.InRange("MailboxSize", 1, 1<<20))
	if err := reg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "relayserver: %v\n", err)
		os.Exit(1)
	}

	logger := core.NewDefaultLogger()
	metrics := relaymetrics.NewMetrics(relaymetrics.DefaultRegisterer)

	tracerProvider, err := relaytracing.NewTracerProvider(context.Background(), relaytracing.ExporterConfig{
		Exporter:    *traceExporter,
		Endpoint:    *traceEndpoint,
		ServiceName: "relayserver",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayserver: %v\n", err)
		os.Exit(1)
	}
	tracer := relaytracing.NewTracer("relayserver")

	r := reactor.NewReactor(reactor.ReactorOptions{MailboxSize: cfg.MailboxSize})
	r.Start()

	dispatcher := dispatch.New()
	dispatcher.SetMetrics(metrics)
	registerAdder(dispatcher, r, logger)

	newCodec, err := codecConstructor(cfg.Codec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayserver: %v\n", err)
		os.Exit(1)
	}

	factory := rpcproto.NewFactory(r, dispatcher, newCodec, logger)
	factory.SetMetrics(metrics)
	factory.SetTracer(tracer)

	var server *transport.Server
	switch cfg.Network {
	case "unix":
		os.Remove(cfg.Address)
		server = transport.NewUnixServer(cfg.Address, factory, r, logger)
	case "tcp":
		host, port, perr := splitHostPort(cfg.Address)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "relayserver: %v\n", perr)
			os.Exit(1)
		}
		server = transport.NewTCPServer(host, port, factory, r, logger)
	default:
		fmt.Fprintf(os.Stderr, "relayserver: unknown network %q\n", cfg.Network)
		os.Exit(1)
	}

	if err := server.Start(); err != nil {
		logger.Errorf("relayserver: listen failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("relayserver: listening on %s:%s (codec=%s)", cfg.Network, cfg.Address, cfg.Codec)

	stopMetrics := serveMetrics(cfg.MetricsAddr, logger)
	defer stopMetrics()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("relayserver: shutting down")
	server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Stop(ctx)
	tracerProvider.Shutdown(ctx)
}

// registerAdder wires up three methods: a synchronous "add" (matching
// rpc_bench.py's marshal_adder.add), an async "slow_add" offloaded onto
// a concurrency.Executor, and an async "batch_add" offloaded onto a
// concurrency.WorkerPool — the two bounded offload pools
// dispatch.RegisterAsync can target, each exercised by a distinct
// method so both code paths are reachable from a real RPC call.
func registerAdder(d *dispatch.Dispatcher, r *reactor.Reactor, logger core.Logger) {
	d.Register("add", func(params []interface{}) (interface{}, error) {
		a, b, err := twoInts(params)
		if err != nil {
			return nil, err
		}
		return a + b, nil
	})

	exec := concurrency.NewExecutor(context.Background(), concurrency.ExecutorConfig{Workers: 4, QueueSize: 256}, logger)
	dispatch.RegisterAsync(d, "slow_add", func(params []interface{}) (interface{}, error) {
		a, b, err := twoInts(params)
		if err != nil {
			return nil, err
		}
		time.Sleep(10 * time.Millisecond)
		return a + b, nil
	}, exec, r, logger)

	pool := concurrency.NewWorkerPool(context.Background(), concurrency.WorkerPoolConfig{Workers: 2, QueueSize: 64}, logger)
	if err := pool.Start(); err != nil {
		logger.Errorf("relayserver: batch_add worker pool failed to start: %v", err)
		return
	}
	dispatch.RegisterAsync(d, "batch_add", func(params []interface{}) (interface{}, error) {
		values, err := ints(params)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, v := range values {
			total += v
		}
		return total, nil
	}, pool, r, logger)
}

func twoInts(params []interface{}) (int, int, error) {
	if len(params) != 2 {
		return 0, 0, fmt.Errorf("add: expected 2 params, got %d", len(params))
	}
	a, aok := toInt(params[0])
	b, bok := toInt(params[1])
	if !aok || !bok {
		return 0, 0, fmt.Errorf("add: params must be numeric")
	}
	return a, b, nil
}

func ints(params []interface{}) ([]int, error) {
	out := make([]int, len(params))
	for i, p := range params {
		v, ok := toInt(p)
		if !ok {
			return nil, fmt.Errorf("batch_add: param %d is not numeric", i)
		}
		out[i] = v
	}
	return out, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
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

// serveMetrics exposes the Prometheus registry over HTTP and returns a
// shutdown func. A blank addr disables the endpoint entirely.
func serveMetrics(addr string, logger core.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(relaymetrics.DefaultRegistry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("relayserver: metrics server error: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
