package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prepaid-gas/paymaster-indexer/business/domain/ledger"
	"github.com/prepaid-gas/paymaster-indexer/external/elastic"
	"github.com/prepaid-gas/paymaster-indexer/external/kafka"
	"github.com/prepaid-gas/paymaster-indexer/infrastructure/store/pebbledb"
	"github.com/prepaid-gas/paymaster-indexer/metrics"
	"github.com/prepaid-gas/paymaster-indexer/network"
)

const prefix = "PREPAID_GAS_INDEXER"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	config := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	var cfg struct {
		InternalStoreFolder string `conf:"default:store"`
		ServerListenAddr    string `conf:"default:0.0.0.0:8000"`
		MetricsListenAddr   string `conf:"default:0.0.0.0:9999"`
		MetricsNamespace    string `conf:"default:prepaid_gas_indexer"`
		Kafka               struct {
			BootstrapServers []string `conf:"default:localhost:9092"`
			EventsTopic      string   `conf:"default:prepaid-gas-paymaster-events"`
			ConsumerGroup    string   `conf:"default:prepaid-gas-indexer"`
		}
		Elastic struct {
			Enabled       bool          `conf:"default:false"`
			Address       string        `conf:"default:http://localhost:9200"`
			ActivityIndex string        `conf:"default:prepaid-gas-activities"`
			Timeout       time.Duration `conf:"default:10s"`
		}
	}

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %v", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %v", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %v", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %v", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	store, err := pebbledb.NewEntityStore(cfg.InternalStoreFolder)
	if err != nil {
		return fmt.Errorf("creating entity store: %v", err)
	}
	defer store.Close()

	m := metrics.NewMetrics(cfg.MetricsNamespace)
	netConfig := network.DefaultConfig(sLogger)
	engine := ledger.NewEngine(store, netConfig, m, sLogger)

	kcl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Kafka.BootstrapServers...),
		kgo.ConsumeTopics(cfg.Kafka.EventsTopic),
		kgo.ConsumerGroup(cfg.Kafka.ConsumerGroup),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	)
	if err != nil {
		return fmt.Errorf("creating kafka client: %v", err)
	}
	defer kcl.Close()
	eventSource := kafka.NewClient(kcl, sLogger)

	var sink ledger.ActivitySink
	if cfg.Elastic.Enabled {
		esClient, err := elastic.NewClient(cfg.Elastic.Address, cfg.Elastic.ActivityIndex, cfg.Elastic.Timeout)
		if err != nil {
			return fmt.Errorf("creating elastic client: %v", err)
		}
		sink = esClient
	}

	processor := ledger.NewProcessor(engine, eventSource, sink, m, sLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	procErrors := make(chan error, 1)
	go func() {
		procErrors <- processor.Consume(ctx)
	}()

	http.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		lastProcessed := make(map[string]uint64)
		for _, name := range []string{"base-sepolia", "base", "ethereum", "sepolia"} {
			block, err := store.GetLastProcessedBlock(name)
			if err != nil {
				continue
			}
			lastProcessed[name] = block
		}
		response := map[string]map[string]uint64{
			"lastProcessedBlocks": lastProcessed,
		}
		data, err := json.Marshal(response)
		if err != nil {
			http.Error(w, fmt.Sprintf("marshalling response: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(data); err != nil {
			http.Error(w, fmt.Sprintf("writing response: %v", err), http.StatusInternalServerError)
		}
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- http.ListenAndServe(cfg.ServerListenAddr, nil)
	}()

	metricsErrors := make(chan error, 1)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsErrors <- http.ListenAndServe(cfg.MetricsListenAddr, mux)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-procErrors:
		return fmt.Errorf("processor error: %v", err)
	case err := <-serverErrors:
		return fmt.Errorf("server error: %v", err)
	case err := <-metricsErrors:
		return fmt.Errorf("metrics server error: %v", err)
	case sig := <-shutdown:
		sLogger.Infow("shutting down", "signal", sig.String())
		cancel()
		return nil
	}
}
