package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sniveil/sniveil/pkg/policy"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sniveil",
	Short: "sniveil mangles SNI-bearing TLS ClientHello packets to defeat DPI",
	Long: `sniveil intercepts outbound IPv4 traffic through one or more netfilter
queues, locates the TLS ClientHello SNI extension in matching TCP flows,
and rewrites, fragments, or decoys the carrier packets so that passive
deep packet inspection cannot reassemble the true server name.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./sniveil.yaml)")

	flags.Int("queue-num", 0, "starting netfilter queue number")
	flags.Int("threads", 1, "number of consecutive queue numbers to service")
	flags.String("sni-domains", "all", "comma-separated domain list to act on, or \"all\"")

	flags.String("frag", "none", "fragmentation strategy: none, tcp, ip")
	flags.Bool("frag-sni-reverse", false, "swap fragment/segment emission order")
	flags.Bool("frag-sni-faked", false, "surround each fragment with decoy packets")
	flags.Int("seg2delay", 0, "delay in milliseconds before emitting the second fragment")

	flags.Bool("fake-sni", false, "prepend decoy ClientHello packets")
	flags.Int("fake-sni-seq-len", 1, "number of decoy packets to prepend")
	flags.String("faking-strategy", "ttl", "decoy invalidation strategy: ttl, ack_seq")
	flags.Int("faking-ttl", 8, "TTL to stamp on ttl-strategy decoys")

	flags.Int("fk-winsize", 0, "rewrite the real packet's TCP window to this size (0 disables)")
	flags.Bool("quic-drop", false, "drop UDP/443 (QUIC) packets instead of inspecting them")
	flags.Bool("no-gso", false, "disable generic segmentation offload handling on ingress")

	flags.Bool("silent", false, "suppress all but error-level logging")
	flags.Bool("trace", false, "enable trace-level logging")

	for _, name := range []string{
		"queue-num", "threads", "sni-domains",
		"frag", "frag-sni-reverse", "frag-sni-faked", "seg2delay",
		"fake-sni", "fake-sni-seq-len", "faking-strategy", "faking-ttl",
		"fk-winsize", "quic-drop", "no-gso",
		"silent", "trace",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", policy.ErrConfigInvalid, err)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("sniveil")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/sniveil")
	}

	viper.SetEnvPrefix("sniveil")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "sniveil: reading config: %v\n", err)
		}
	}
}
