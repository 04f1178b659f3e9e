package main

import (
	"context"
	"fmt"

	"PcapLedger/internal/config"
	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/factory"
	"PcapLedger/internal/log"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "pcap-ledger",
	Short: "Parse capture files into a queryable traffic ledger",
	Long: `pcap-ledger reads .pcap and .pcapng files, classifies every frame into a
protocol-tagged record, stores the records in a database and exports them,
optionally filtered, as JSON together with traffic statistics.

Without --config the built-in defaults are used; the environment variables
DATABASE_URL, PCAP_DIRECTORY, OUTPUT_JSON_FILE, LOG_LEVEL, BATCH_SIZE and
MAX_PACKETS_PER_FILE override both.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(initCmd, parseCmd, exportCmd, runCmd, statsCmd)
}

// setup loads configuration, initializes logging and builds the components.
func setup(ctx context.Context) (*factory.Components, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, err
	}
	return factory.Build(ctx, cfg)
}

// filterFlags binds the record filter flags of a command.
func filterFlags(cmd *cobra.Command, raw *filter.RawSpec) {
	f := cmd.Flags()
	f.StringVar(&raw.Protocol, "protocol", "", "keep records with this protocol label (TCP, UDP, ICMP, IP, IPv6, TCPv6, UDPv6, Other)")
	f.StringVar(&raw.Address, "ip", "", "keep records with this source or destination address")
	f.StringVar(&raw.Port, "port", "", "keep records with this source or destination port")
	f.StringVar(&raw.MinSize, "min-size", "", "minimum packet size in bytes")
	f.StringVar(&raw.MaxSize, "max-size", "", "maximum packet size in bytes")
	f.StringVar(&raw.StartTime, "start-time", "", "earliest timestamp (RFC 3339 or 2006-01-02[ 15:04:05])")
	f.StringVar(&raw.EndTime, "end-time", "", "latest timestamp")
}
