// Package logging はzapのロガーを設定から組み立てる
package logging

import (
	"go.uber.org/zap"
)

type Config struct {
	Level       string
	Development bool
}

// Newは本番ならJSON、開発ならconsole
func New(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "storefront")), nil
}
