package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hydro-project/anna/internal/cluster"
	"github.com/hydro-project/anna/internal/config"
	"github.com/hydro-project/anna/internal/hashring"
	"github.com/hydro-project/anna/internal/health"
	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/metrics"
	"github.com/hydro-project/anna/internal/placement"
	"github.com/hydro-project/anna/internal/serializer"
	"github.com/hydro-project/anna/internal/server"
	"github.com/hydro-project/anna/internal/storage/diskmanager"
	"github.com/hydro-project/anna/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if configPath == "" {
		configPath = "./conf/anna-config.yml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	selfTier, err := metadata.ParseTier(cfg.Server.Tier)
	if err != nil {
		logger.Fatal("invalid tier", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("public_ip", cfg.Server.PublicIP),
		zap.String("private_ip", cfg.Server.PrivateIP),
		zap.String("tier", selfTier.String()))

	tierMetadata := map[metadata.Tier]metadata.TierMetadata{
		metadata.TierMemory: {
			ID:                 metadata.TierMemory,
			ThreadNumber:       cfg.Threads.Memory,
			DefaultReplication: cfg.Replication.Memory,
			NodeCapacity:       cfg.Capacity.Memory,
		},
		metadata.TierDisk: {
			ID:                 metadata.TierDisk,
			ThreadNumber:       cfg.Threads.Disk,
			DefaultReplication: cfg.Replication.Ebs,
			NodeCapacity:       cfg.Capacity.Ebs,
		},
	}

	oracle := hashring.New(tierMetadata, hashring.DefaultVirtualNodes)
	selfNode := hashring.Node{
		PublicIP:  cfg.Server.PublicIP,
		PrivateIP: cfg.Server.PrivateIP,
	}
	oracle.AddNode(selfTier, selfNode)

	var membership *cluster.Membership
	if cfg.Membership.Enabled {
		membership, err = cluster.New(&cluster.Config{
			Enabled:        true,
			BindPort:       cfg.Membership.BindPort,
			SeedNodes:      cfg.Membership.SeedNodes,
			GossipInterval: cfg.Membership.GossipInterval,
			ProbeTimeout:   cfg.Membership.ProbeTimeout,
			ProbeInterval:  cfg.Membership.ProbeInterval,
		}, cluster.NodeMeta{
			PublicIP:  cfg.Server.PublicIP,
			PrivateIP: cfg.Server.PrivateIP,
			Tier:      selfTier.String(),
		}, &ringEvents{oracle: oracle}, logger)
		if err != nil {
			logger.Fatal("failed to start membership", zap.Error(err))
		}
		defer membership.Shutdown()
	}

	registry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(&metrics.ServerConfig{
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, registry, logger)
		metricsServer.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Stop(ctx)
		}()
	}

	healthServer := health.NewServer(cfg.HealthPort, logger)
	if err := healthServer.Start(); err != nil {
		logger.Fatal("failed to start health server", zap.Error(err))
	}
	defer healthServer.Stop()

	sender := transport.NewTCPSender(logger)
	defer sender.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	threadCount := tierMetadata[selfTier].ThreadNumber
	servers := make([]*transport.Server, 0, threadCount)
	for tid := uint32(0); tid < threadCount; tid++ {
		var serializers serializer.Map
		if selfTier == metadata.TierDisk {
			dm := diskmanager.New(cfg.Ebs, cfg.Capacity.Ebs/uint64(threadCount), logger)
			serializers, err = serializer.NewDiskMap(cfg.Ebs, tid, dm, logger)
			if err != nil {
				logger.Fatal("failed to initialize disk serializers", zap.Error(err))
			}
		} else {
			serializers = serializer.NewMemoryMap(logger)
		}

		self := placement.ServerThread{
			PublicIP:  cfg.Server.PublicIP,
			PrivateIP: cfg.Server.PrivateIP,
			TID:       tid,
			Tier:      selfTier,
		}

		thread := server.New(server.Config{
			Self:                    self,
			Tiers:                   []metadata.Tier{selfTier},
			TierMetadata:            tierMetadata,
			DefaultLocalReplication: cfg.Replication.Local,
			WarmupReplication:       cfg.Replication.Warmup,
			Seed:                    time.Now().UnixNano() + int64(tid),
		}, oracle, sender, serializers,
			metrics.New(registry, cfg.Server.PublicIP, tid), logger)

		listenAddr := fmt.Sprintf(":%d", placement.BaseStoragePort+tid)
		threadServer := transport.NewServer(listenAddr, thread.Deliver, logger)
		if err := threadServer.Start(); err != nil {
			logger.Fatal("failed to start thread transport", zap.Error(err))
		}
		servers = append(servers, threadServer)

		go thread.Run(ctx)
	}
	defer func() {
		for _, s := range servers {
			s.Close()
		}
	}()

	healthServer.SetServing(true)
	logger.Info("storage node running",
		zap.Uint32("threads", threadCount),
		zap.String("tier", selfTier.String()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))
	healthServer.SetServing(false)
	cancel()
}

// ringEvents feeds membership changes into the placement rings.
type ringEvents struct {
	oracle *hashring.RingOracle
}

func (e *ringEvents) NodeJoined(tier metadata.Tier, node hashring.Node) {
	e.oracle.AddNode(tier, node)
}

func (e *ringEvents) NodeLeft(publicIP string) {
	e.oracle.RemoveNode(publicIP)
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
