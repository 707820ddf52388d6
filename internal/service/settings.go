package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	SettingVatPercent         = "vat_percent"
	SettingCommissionPercent  = "commission_percent"
	SettingHighValueThreshold = "high_value_threshold"
	SettingFundHoldDays       = "fund_hold_days"
	SettingUnlockBatchSize    = "unlock_batch_size"
	SettingHomeJurisdiction   = "home_jurisdiction"
)

var (
	defaultVatPercent         = decimal.NewFromInt(5)
	defaultCommissionPercent  = decimal.NewFromInt(10)
	defaultHighValueThreshold = decimal.NewFromInt(10000)
)

const (
	defaultFundHoldDays    = 10
	defaultUnlockBatchSize = 500
)

// SettingsService reads platform settings, falling back to built-in defaults
// when a key is missing or unparsable.
type SettingsService interface {
	VatPercent(ctx context.Context) decimal.Decimal
	CommissionPercent(ctx context.Context) decimal.Decimal
	HighValueThreshold(ctx context.Context) decimal.Decimal
	FundHoldDays(ctx context.Context) int
	UnlockBatchSize(ctx context.Context) int
	HomeJurisdiction(ctx context.Context) string
	Set(ctx context.Context, key, value string) error
}

type settingsServiceImpl struct {
	repo        repository.SettingsRepository
	defaultHome string
}

func NewSettingsService(repo repository.SettingsRepository, defaultHome string) SettingsService {
	return &settingsServiceImpl{
		repo:        repo,
		defaultHome: defaultHome,
	}
}

func (s *settingsServiceImpl) VatPercent(ctx context.Context) decimal.Decimal {
	return s.decimalSetting(ctx, SettingVatPercent, defaultVatPercent)
}

func (s *settingsServiceImpl) CommissionPercent(ctx context.Context) decimal.Decimal {
	return s.decimalSetting(ctx, SettingCommissionPercent, defaultCommissionPercent)
}

func (s *settingsServiceImpl) HighValueThreshold(ctx context.Context) decimal.Decimal {
	return s.decimalSetting(ctx, SettingHighValueThreshold, defaultHighValueThreshold)
}

func (s *settingsServiceImpl) FundHoldDays(ctx context.Context) int {
	return s.intSetting(ctx, SettingFundHoldDays, defaultFundHoldDays)
}

func (s *settingsServiceImpl) UnlockBatchSize(ctx context.Context) int {
	return s.intSetting(ctx, SettingUnlockBatchSize, defaultUnlockBatchSize)
}

func (s *settingsServiceImpl) HomeJurisdiction(ctx context.Context) string {
	value, ok := s.lookup(ctx, SettingHomeJurisdiction)
	if !ok || value == "" {
		return s.defaultHome
	}
	return value
}

var knownSettings = map[string]struct{}{
	SettingVatPercent:         {},
	SettingCommissionPercent:  {},
	SettingHighValueThreshold: {},
	SettingFundHoldDays:       {},
	SettingUnlockBatchSize:    {},
	SettingHomeJurisdiction:   {},
}

func (s *settingsServiceImpl) Set(ctx context.Context, key, value string) error {
	if _, ok := knownSettings[key]; !ok {
		return apperr.Newf(apperr.CodeValidation, "unknown setting %q", key)
	}
	if err := s.repo.Set(ctx, key, value); err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

func (s *settingsServiceImpl) lookup(ctx context.Context, key string) (string, bool) {
	value, ok, err := s.repo.Get(ctx, key)
	if err != nil {
		log.L.Warn("read setting", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, ok
}

func (s *settingsServiceImpl) decimalSetting(ctx context.Context, key string, fallback decimal.Decimal) decimal.Decimal {
	value, ok := s.lookup(ctx, key)
	if !ok {
		return fallback
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil || parsed.IsNegative() {
		log.L.Warn("invalid setting, using default", zap.String("key", key), zap.String("value", value))
		return fallback
	}
	return parsed
}

func (s *settingsServiceImpl) intSetting(ctx context.Context, key string, fallback int) int {
	value, ok := s.lookup(ctx, key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.L.Warn("invalid setting, using default", zap.String("key", key), zap.String("value", value))
		return fallback
	}
	return parsed
}
