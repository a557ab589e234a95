package policy

import (
	"fmt"

	"github.com/sniveil/sniveil/pkg/fake"
	"github.com/sniveil/sniveil/pkg/sni"
)

// FragmentationStrategy selects how a matched carrier packet is split.
type FragmentationStrategy int

const (
	FragmentationNone FragmentationStrategy = iota
	FragmentationTCP
	FragmentationIP
)

func (s FragmentationStrategy) String() string {
	switch s {
	case FragmentationTCP:
		return "tcp"
	case FragmentationIP:
		return "ip"
	default:
		return "none"
	}
}

// Verbosity controls logging detail; it does not affect packet handling.
type Verbosity int

const (
	VerbositySilent Verbosity = iota
	VerbosityNormal
	VerbosityTrace
)

// MaxThreads bounds the configured worker count, mirroring the reference
// CLI's MAX_THREADS range check.
const MaxThreads = 256

// Config is the process-lifetime, read-only configuration record. It is
// constructed once by NewConfig and shared by reference across every
// worker; no field is mutated after construction.
type Config struct {
	FragmentationStrategy FragmentationStrategy
	FakingStrategy        fake.Strategy
	FakingTTL              uint8
	FakeSNI                bool
	FakeSNISeqLen          uint8
	FragSNIReverse         bool
	FragSNIFaked           bool
	Seg2DelayMs            int
	FkWinsize              uint16
	QuicDrop               bool
	UseGSO                 bool
	Verbose                Verbosity
	Domains                sni.DomainSet
	QueueStartNum          int
	Threads                int

	ClientHelloTemplate []byte
}

// ConfigOption mutates a Config under construction, following the
// functional-options idiom used for NewConfig.
type ConfigOption func(*Config)

// NewConfig builds a Config from defaults overridden by opts, validating
// every numeric option against its documented range. A CONFIG_INVALID
// error here is fatal: the process must not start with an invalid
// configuration.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	cfg := &Config{
		FragmentationStrategy: FragmentationNone,
		FakingStrategy:        fake.StrategyTTL,
		FakingTTL:             8,
		FakeSNISeqLen:         1,
		Domains:               sni.ParseDomains("all"),
		Threads:               1,
		ClientHelloTemplate:   fake.DefaultClientHello,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Threads < 0 || c.Threads > MaxThreads {
		return fmt.Errorf("%w: threads %d out of range [0, %d]", ErrConfigInvalid, c.Threads, MaxThreads)
	}
	if c.QueueStartNum < 0 {
		return fmt.Errorf("%w: queue_start_num %d must be non-negative", ErrConfigInvalid, c.QueueStartNum)
	}
	if c.Seg2DelayMs < 0 {
		return fmt.Errorf("%w: seg2_delay_ms %d must be non-negative", ErrConfigInvalid, c.Seg2DelayMs)
	}
	if len(c.ClientHelloTemplate) == 0 {
		return fmt.Errorf("%w: client hello template must not be empty", ErrConfigInvalid)
	}
	return nil
}

func WithFragmentationStrategy(s FragmentationStrategy) ConfigOption {
	return func(c *Config) { c.FragmentationStrategy = s }
}

func WithFakingStrategy(s fake.Strategy) ConfigOption {
	return func(c *Config) { c.FakingStrategy = s }
}

func WithFakingTTL(ttl uint8) ConfigOption {
	return func(c *Config) { c.FakingTTL = ttl }
}

func WithFakeSNI(enabled bool, seqLen uint8) ConfigOption {
	return func(c *Config) {
		c.FakeSNI = enabled
		c.FakeSNISeqLen = seqLen
	}
}

func WithFragSNIReverse(enabled bool) ConfigOption {
	return func(c *Config) { c.FragSNIReverse = enabled }
}

func WithFragSNIFaked(enabled bool) ConfigOption {
	return func(c *Config) { c.FragSNIFaked = enabled }
}

func WithSeg2DelayMs(ms int) ConfigOption {
	return func(c *Config) { c.Seg2DelayMs = ms }
}

func WithFkWinsize(size uint16) ConfigOption {
	return func(c *Config) { c.FkWinsize = size }
}

func WithQuicDrop(enabled bool) ConfigOption {
	return func(c *Config) { c.QuicDrop = enabled }
}

func WithUseGSO(enabled bool) ConfigOption {
	return func(c *Config) { c.UseGSO = enabled }
}

func WithVerbose(v Verbosity) ConfigOption {
	return func(c *Config) { c.Verbose = v }
}

func WithDomains(d sni.DomainSet) ConfigOption {
	return func(c *Config) { c.Domains = d }
}

func WithThreads(queueStartNum, threads int) ConfigOption {
	return func(c *Config) {
		c.QueueStartNum = queueStartNum
		c.Threads = threads
	}
}

func WithClientHelloTemplate(tmpl []byte) ConfigOption {
	return func(c *Config) { c.ClientHelloTemplate = tmpl }
}
