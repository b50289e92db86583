package analytics

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// 设置项
const (
	SettingPetrolPricePerLitre = "petrol_price_per_litre"
	SettingPetrolMPG           = "petrol_mpg"
	SettingDefaultEfficiency   = "default_efficiency"
	SettingCurrency            = "currency"
)

// 默认值
const (
	DefaultPetrolPricePerLitre = 128.9
	DefaultPetrolMPG           = 60.0
	DefaultEfficiency          = 3.7
	DefaultCurrency            = "GBP"
)

// Settings 引擎使用的用户设置
type Settings struct {
	PetrolPricePerLitre float64 `json:"petrol_price_per_litre"`
	PetrolMPG           float64 `json:"petrol_mpg"`
	DefaultEfficiency   float64 `json:"default_efficiency"`
	Currency            string  `json:"currency"`
}

// DefaultSettings 默认设置
func DefaultSettings() Settings {
	return Settings{
		PetrolPricePerLitre: DefaultPetrolPricePerLitre,
		PetrolMPG:           DefaultPetrolMPG,
		DefaultEfficiency:   DefaultEfficiency,
		Currency:            DefaultCurrency,
	}
}

// ParseSettings 解析用户设置，缺失、解析失败或数值非正时使用默认值，不返回错误
func ParseSettings(values map[string]string, logger *zap.Logger) Settings {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := DefaultSettings()
	s.PetrolPricePerLitre = parseFloat(values, SettingPetrolPricePerLitre, s.PetrolPricePerLitre, logger)
	s.PetrolMPG = parseFloat(values, SettingPetrolMPG, s.PetrolMPG, logger)
	s.DefaultEfficiency = parseFloat(values, SettingDefaultEfficiency, s.DefaultEfficiency, logger)
	if c := strings.ToUpper(strings.TrimSpace(values[SettingCurrency])); c != "" {
		s.Currency = c
	}
	return s
}

func parseFloat(values map[string]string, key string, defaultValue float64, logger *zap.Logger) float64 {
	raw, ok := values[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !finite(f) || f <= 0 {
		logger.Warn("Invalid numeric setting, using default",
			zap.String("key", key),
			zap.String("value", raw),
			zap.Float64("default", defaultValue),
		)
		return defaultValue
	}
	return f
}
