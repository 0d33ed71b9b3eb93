package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MaintenanceTuning holds the knobs of the maintenance run that operators
// adjust without a redeploy.
type MaintenanceTuning struct {
	RunIntervalHours    int `mapstructure:"runIntervalHours"`
	PenaltyPageSize     int `mapstructure:"penaltyPageSize"`
	PenaltyPageDelayMs  int `mapstructure:"penaltyPageDelayMs"`
	PenaltyStaleHours   int `mapstructure:"penaltyStaleHours"`
	OrderTTLHours       int `mapstructure:"orderTtlHours"`
	TaskTimeoutSeconds  int `mapstructure:"taskTimeoutSeconds"`
	RunReportHistoryLen int `mapstructure:"runReportHistoryLen"`
}

func DefaultMaintenanceTuning() MaintenanceTuning {
	return MaintenanceTuning{
		RunIntervalHours:    24,
		PenaltyPageSize:     200,
		PenaltyPageDelayMs:  100,
		PenaltyStaleHours:   24,
		OrderTTLHours:       72,
		TaskTimeoutSeconds:  300,
		RunReportHistoryLen: 20,
	}
}

func (t MaintenanceTuning) RunInterval() time.Duration {
	return time.Duration(t.RunIntervalHours) * time.Hour
}

func (t MaintenanceTuning) PenaltyPageDelay() time.Duration {
	return time.Duration(t.PenaltyPageDelayMs) * time.Millisecond
}

func (t MaintenanceTuning) PenaltyStaleAfter() time.Duration {
	return time.Duration(t.PenaltyStaleHours) * time.Hour
}

func (t MaintenanceTuning) OrderTTL() time.Duration {
	return time.Duration(t.OrderTTLHours) * time.Hour
}

func (t MaintenanceTuning) TaskTimeout() time.Duration {
	return time.Duration(t.TaskTimeoutSeconds) * time.Second
}

type MaintenanceTuningHolder struct {
	current atomic.Value // holds MaintenanceTuning
}

func NewMaintenanceTuningHolder() (*MaintenanceTuningHolder, error) {
	v := viper.New()

	v.SetConfigName("maintenance")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/parcelledger/config") // Volume-mounted config
	v.AddConfigPath("/etc/parcelledger")            // System config
	v.AddConfigPath(".")                            // Current directory (dev mode)

	v.SetEnvPrefix("PARCELLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMaintenanceTuning()
	v.SetDefault("maintenance.runIntervalHours", defaults.RunIntervalHours)
	v.SetDefault("maintenance.penaltyPageSize", defaults.PenaltyPageSize)
	v.SetDefault("maintenance.penaltyPageDelayMs", defaults.PenaltyPageDelayMs)
	v.SetDefault("maintenance.penaltyStaleHours", defaults.PenaltyStaleHours)
	v.SetDefault("maintenance.orderTtlHours", defaults.OrderTTLHours)
	v.SetDefault("maintenance.taskTimeoutSeconds", defaults.TaskTimeoutSeconds)
	v.SetDefault("maintenance.runReportHistoryLen", defaults.RunReportHistoryLen)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg MaintenanceTuning
	if err := v.UnmarshalKey("maintenance", &cfg); err != nil {
		return nil, err
	}
	if err := validateMaintenanceTuning(cfg); err != nil {
		return nil, err
	}

	holder := &MaintenanceTuningHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MaintenanceTuning
		if err := v.UnmarshalKey("maintenance", &updated); err != nil {
			log.Printf("[maintenance-tuning] reload failed: %v", err)
			return
		}
		if err := validateMaintenanceTuning(updated); err != nil {
			log.Printf("[maintenance-tuning] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[maintenance-tuning] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *MaintenanceTuningHolder) Get() MaintenanceTuning {
	return h.current.Load().(MaintenanceTuning)
}

// NewStaticTuningHolder returns a holder pinned to the given values, for tests.
func NewStaticTuningHolder(t MaintenanceTuning) *MaintenanceTuningHolder {
	holder := &MaintenanceTuningHolder{}
	holder.current.Store(t)
	return holder
}

func validateMaintenanceTuning(cfg MaintenanceTuning) error {
	if cfg.RunIntervalHours <= 0 {
		return errors.New("maintenance.runIntervalHours must be positive")
	}
	if cfg.PenaltyPageSize <= 0 {
		return errors.New("maintenance.penaltyPageSize must be positive")
	}
	if cfg.TaskTimeoutSeconds <= 0 {
		return errors.New("maintenance.taskTimeoutSeconds must be positive")
	}
	if cfg.RunReportHistoryLen <= 0 {
		return errors.New("maintenance.runReportHistoryLen must be positive")
	}
	return nil
}
