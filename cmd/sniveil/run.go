package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/sniveil/sniveil/internal/inject"
	"github.com/sniveil/sniveil/internal/logging"
	"github.com/sniveil/sniveil/internal/queue"
	"github.com/sniveil/sniveil/pkg/fake"
	"github.com/sniveil/sniveil/pkg/policy"
	"github.com/sniveil/sniveil/pkg/sni"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "attach to the configured netfilter queues and start mangling traffic",
	RunE:  runRun,
}

func fragmentationFromFlag(s string) policy.FragmentationStrategy {
	switch s {
	case "tcp":
		return policy.FragmentationTCP
	case "ip":
		return policy.FragmentationIP
	default:
		return policy.FragmentationNone
	}
}

func fakingStrategyFromFlag(s string) fake.Strategy {
	if s == "ack_seq" {
		return fake.StrategyAckSeq
	}
	return fake.StrategyTTL
}

func verboseName() string {
	if viper.GetBool("trace") {
		return "trace"
	}
	if viper.GetBool("silent") {
		return "silent"
	}
	return "normal"
}

func buildConfig() (*policy.Config, error) {
	for name, max := range map[string]int{"faking-ttl": 255, "fake-sni-seq-len": 255, "fk-winsize": 65535} {
		if v := viper.GetInt(name); v < 0 || v > max {
			return nil, fmt.Errorf("%w: --%s %d out of range [0, %d]", policy.ErrConfigInvalid, name, v, max)
		}
	}
	if s := viper.GetString("frag"); s != "none" && s != "tcp" && s != "ip" {
		return nil, fmt.Errorf("%w: unknown --frag value %q", policy.ErrConfigInvalid, s)
	}
	if s := viper.GetString("faking-strategy"); s != "ttl" && s != "ack_seq" {
		return nil, fmt.Errorf("%w: unknown --faking-strategy value %q", policy.ErrConfigInvalid, s)
	}
	return policy.NewConfig(
		policy.WithThreads(viper.GetInt("queue-num"), viper.GetInt("threads")),
		policy.WithDomains(sni.ParseDomains(viper.GetString("sni-domains"))),
		policy.WithFragmentationStrategy(fragmentationFromFlag(viper.GetString("frag"))),
		policy.WithFragSNIReverse(viper.GetBool("frag-sni-reverse")),
		policy.WithFragSNIFaked(viper.GetBool("frag-sni-faked")),
		policy.WithSeg2DelayMs(viper.GetInt("seg2delay")),
		policy.WithFakeSNI(viper.GetBool("fake-sni"), uint8(viper.GetInt("fake-sni-seq-len"))),
		policy.WithFakingStrategy(fakingStrategyFromFlag(viper.GetString("faking-strategy"))),
		policy.WithFakingTTL(uint8(viper.GetInt("faking-ttl"))),
		policy.WithFkWinsize(uint16(viper.GetInt("fk-winsize"))),
		policy.WithQuicDrop(viper.GetBool("quic-drop")),
		policy.WithUseGSO(!viper.GetBool("no-gso")),
	)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	log := logging.New(logging.Options{Level: logging.VerboseToLevel(verboseName())})
	entry := logrus.NewEntry(log)

	entry.Infof("sniveil starting: queues %d-%d, frag=%v, fake_sni=%v, quic_drop=%v",
		cfg.QueueStartNum, cfg.QueueStartNum+cfg.Threads-1,
		cfg.FragmentationStrategy, cfg.FakeSNI, cfg.QuicDrop)

	injector, err := inject.NewInjector()
	if err != nil {
		return fmt.Errorf("opening raw socket injector: %w", err)
	}
	defer injector.Close()

	engine := policy.NewEngine(cfg, entry)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Threads; i++ {
		queueNum := uint16(cfg.QueueStartNum + i)
		worker := &queue.Worker{
			QueueNum: queueNum,
			UseGSO:   cfg.UseGSO,
			Engine:   engine,
			Injector: injector,
			Log:      entry.WithField("queue", queueNum),
		}
		group.Go(func() error {
			err := worker.Run(gctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	return group.Wait()
}
