package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
	"github.com/tdex-network/btcledger/pkg/wallet"
)

const (
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the bitcoin network of the node, one of mainnet, testnet,
	// signet or regtest
	NetworkKey = "NETWORK"
	// RPCAddrKey is the address <host:port> of the bitcoind RPC server
	RPCAddrKey = "RPC_ADDR"
	// RPCUserKey is the user for the RPC basic auth
	RPCUserKey = "RPC_USER"
	// RPCPasswordKey is the password for the RPC basic auth
	RPCPasswordKey = "RPC_PASSWORD"
	// RPCTLSKey enables TLS for connecting to the RPC server
	RPCTLSKey = "RPC_TLS"
	// RPCCacheTTLKey is the duration in seconds read RPC responses are cached for
	RPCCacheTTLKey = "RPC_CACHE_TTL"
	// DBSecretKey is the secret used to encrypt the private keys stored in db
	DBSecretKey = "DB_SECRET"
	// PollIntervalKey is the interval in seconds between two polls of the
	// chain for new blocks
	PollIntervalKey = "POLL_INTERVAL"
	// PollRateLimitKey is the max number of blocks fetched per second while
	// syncing, 0 means unlimited
	PollRateLimitKey = "POLL_RATE_LIMIT"
	// StartHeightKey is the height of the first block to reconcile if none
	// was processed yet, 0 means the tip of the chain
	StartHeightKey = "START_HEIGHT"
	// FeeTargetBlocksKey is the confirmation target for fee estimation
	FeeTargetBlocksKey = "FEE_TARGET_BLOCKS"
	// FeeRefreshIntervalKey is the interval in seconds between two fee
	// estimate updates
	FeeRefreshIntervalKey = "FEE_REFRESH_INTERVAL"
	// LockWaitTimeoutKey is the max time in seconds a wallet operation waits
	// for the lock before failing
	LockWaitTimeoutKey = "LOCK_WAIT_TIMEOUT"
	// LockExecutionTimeoutKey is the max time in seconds a wallet operation
	// can hold the lock
	LockExecutionTimeoutKey = "LOCK_EXECUTION_TIMEOUT"
	// DustThresholdKey is the amount in satoshis at or below which utxos are
	// never spent
	DustThresholdKey = "DUST_THRESHOLD"
	// MaxFeeRateMultiplierKey bounds the fee rate of withdrawals to the given
	// multiple of the estimated one
	MaxFeeRateMultiplierKey = "MAX_FEE_RATE_MULTIPLIER"
	// MetricsPortKey is the port where prometheus metrics are served
	MetricsPortKey = "METRICS_PORT"
	// NoMetricsKey disables the prometheus metrics endpoint
	NoMetricsKey = "NO_METRICS"
	// StatsIntervalKey defines interval in seconds for printing memory
	// statistics, 0 disables them
	StatsIntervalKey = "STATS_INTERVAL"

	DbLocation = "db"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("btcledger", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("BTCLEDGER")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, "mainnet")
	vip.SetDefault(RPCAddrKey, "localhost:8332")
	vip.SetDefault(RPCTLSKey, false)
	vip.SetDefault(RPCCacheTTLKey, 5)
	vip.SetDefault(PollIntervalKey, 10)
	vip.SetDefault(PollRateLimitKey, 0)
	vip.SetDefault(StartHeightKey, 0)
	vip.SetDefault(FeeTargetBlocksKey, 6)
	vip.SetDefault(FeeRefreshIntervalKey, 600)
	vip.SetDefault(LockWaitTimeoutKey, 30)
	vip.SetDefault(LockExecutionTimeoutKey, 300)
	vip.SetDefault(DustThresholdKey, int(wallet.DefaultDustThreshold))
	vip.SetDefault(MaxFeeRateMultiplierKey, wallet.DefaultMaxFeeRateMultiplier)
	vip.SetDefault(MetricsPortKey, 9090)
	vip.SetDefault(NoMetricsKey, false)
	vip.SetDefault(StatsIntervalKey, 0)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetUint32(key string) uint32 {
	return vip.GetUint32(key)
}

func GetUint64(key string) uint64 {
	return vip.GetUint64(key)
}

func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetSeconds returns the value of an interval key, expressed in seconds,
// as a duration.
func GetSeconds(key string) time.Duration {
	return time.Duration(vip.GetInt(key)) * time.Second
}

// GetNetwork returns the params of the configured bitcoin network.
func GetNetwork() (*chaincfg.Params, error) {
	return wallet.NetworkFromString(GetString(NetworkKey))
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetDbDir() string {
	return filepath.Join(GetDatadir(), DbLocation)
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if _, err := GetNetwork(); err != nil {
		return fmt.Errorf("%s: %s", NetworkKey, err)
	}

	if len(GetString(RPCAddrKey)) <= 0 {
		return fmt.Errorf("missing rpc address")
	}

	if !vip.IsSet(DBSecretKey) || len(GetString(DBSecretKey)) <= 0 {
		return fmt.Errorf("missing db secret")
	}

	for _, key := range []string{
		PollIntervalKey, FeeRefreshIntervalKey,
		LockWaitTimeoutKey, LockExecutionTimeoutKey,
	} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be greater than 0", key)
		}
	}

	for _, key := range []string{
		RPCCacheTTLKey, PollRateLimitKey, StartHeightKey, StatsIntervalKey,
	} {
		if GetInt(key) < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	if GetInt(FeeTargetBlocksKey) < 1 || GetInt(FeeTargetBlocksKey) > 1008 {
		return fmt.Errorf("%s must be in range [1, 1008]", FeeTargetBlocksKey)
	}

	if GetInt(DustThresholdKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", DustThresholdKey)
	}

	if GetFloat(MaxFeeRateMultiplierKey) < 1 {
		return fmt.Errorf("%s must be equal or greater than 1", MaxFeeRateMultiplierKey)
	}

	return nil
}

func initDatadir() error {
	return makeDirectoryIfNotExists(GetDbDir())
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
