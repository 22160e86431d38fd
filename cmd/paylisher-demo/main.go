// Command paylisher-demo exercises the SDK end to end: it builds a client
// from the environment, runs the deferred attribution check, feeds any URLs
// given as arguments through the deep link pipeline and serves Prometheus
// metrics when enabled.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	paylisher "github.com/paylisher/paylisher-go"
	"github.com/paylisher/paylisher-go/pkg/config"
	"github.com/paylisher/paylisher-go/pkg/deeplink"
	"github.com/paylisher/paylisher-go/pkg/deferred"
)

func main() {
	var (
		testMode    = flag.Bool("test", false, "feed sample deep links through the pipeline")
		debug       = flag.Bool("debug", false, "verbose attribution logging")
		metricsAddr = flag.String("metrics", "", "serve /metrics on this address (e.g. :9090)")
	)
	flag.Parse()

	cfg := config.New(os.Getenv("PAYLISHER_API_KEY"))
	if err := cfg.FromEnv(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg.MetricsEnabled = *metricsAddr != ""
	cfg.DeepLink.DebugLogging = *debug
	cfg.Deferred = config.ForTesting()
	cfg.Deferred.DebugLogging = *debug

	client, err := paylisher.New(cfg)
	if err != nil {
		log.Fatalf("client error: %v", err)
	}
	defer client.Close()

	client.DeepLinks().SetHandler(deeplink.Handler{
		Received: func(link *deeplink.DeepLink, requiresAuth bool) {
			log.Printf("received %s (auth required: %t)", link, requiresAuth)
		},
		RequiresAuth: func(link *deeplink.DeepLink, complete deeplink.CompletionFunc) {
			log.Printf("auth required for %s, approving", link.Destination)
			complete(true)
		},
		Failed: func(rawURL string, err error) {
			log.Printf("failed to handle %s: %v", rawURL, err)
		},
	})

	client.CheckDeferred(deferred.Callbacks{
		Success: func(link *deeplink.DeepLink) {
			log.Printf("deferred match: %s", link)
		},
		NoMatch: func() { log.Printf("no deferred match") },
		Error:   func(err error) { log.Printf("deferred check error: %v", err) },
	})

	for _, rawURL := range flag.Args() {
		client.HandleURL(rawURL)
	}
	if *testMode {
		runTestMode(client)
	}

	if *metricsAddr != "" {
		go func() {
			log.Printf("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, promhttp.Handler()); err != nil {
				log.Fatalf("metrics server error: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	client.Flush()
}
