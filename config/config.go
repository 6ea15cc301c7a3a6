// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/lightgcn/base/log"
	"github.com/gorse-io/lightgcn/model"
	"github.com/juju/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the configuration for models.
type Config struct {
	Model ModelConfig `mapstructure:"model"`
	Log   LogConfig   `mapstructure:"log"`
}

// ModelConfig is the configuration for a model.
type ModelConfig struct {
	Name         string  `mapstructure:"name" validate:"oneof=mf lightgcn lgn"`
	LatentDim    int     `mapstructure:"latent_dim" validate:"gt=0"`
	NLayers      int     `mapstructure:"n_layers" validate:"gte=0"`
	KeepProb     float32 `mapstructure:"keep_prob" validate:"gt=0,lte=1"`
	Dropout      bool    `mapstructure:"dropout"`
	ASplit       bool    `mapstructure:"a_split"`
	NFolds       int     `mapstructure:"n_folds" validate:"gt=0"`
	InitMean     float32 `mapstructure:"init_mean"`
	InitStd      float32 `mapstructure:"init_std" validate:"gte=0"`
	RandomState  int64   `mapstructure:"random_state"`
	Jobs         int     `mapstructure:"jobs" validate:"gt=0"`
	PretrainPath string  `mapstructure:"pretrain_path"`
}

// Params converts the configuration to hyper-parameters. A zero init_std
// leaves the default of the model.
func (c *ModelConfig) Params() model.Params {
	params := model.Params{
		model.NFactors:    c.LatentDim,
		model.NLayers:     c.NLayers,
		model.KeepProb:    c.KeepProb,
		model.Dropout:     c.Dropout,
		model.ASplit:      c.ASplit,
		model.NFolds:      c.NFolds,
		model.InitMean:    c.InitMean,
		model.RandomState: c.RandomState,
		model.Jobs:        c.Jobs,
	}
	if c.InitStd > 0 {
		params[model.InitStdDev] = c.InitStd
	}
	return params
}

// LogConfig is the configuration for logging.
type LogConfig struct {
	Debug      bool   `mapstructure:"debug"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
}

// SetLogger replaces the global logger by this configuration.
func (c *LogConfig) SetLogger() error {
	flagSet := pflag.NewFlagSet("log", pflag.ContinueOnError)
	log.AddFlags(flagSet)
	if c.Path != "" {
		if err := flagSet.Set("log-path", c.Path); err != nil {
			return errors.Trace(err)
		}
	}
	for name, value := range map[string]int{
		"log-max-size":    c.MaxSize,
		"log-max-age":     c.MaxAge,
		"log-max-backups": c.MaxBackups,
	} {
		if err := flagSet.Set(name, strconv.Itoa(value)); err != nil {
			return errors.Trace(err)
		}
	}
	log.SetLogger(flagSet, c.Debug)
	return nil
}

func GetDefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:      "lightgcn",
			LatentDim: 64,
			NLayers:   3,
			KeepProb:  0.6,
			NFolds:    100,
			Jobs:      1,
		},
		Log: LogConfig{
			MaxSize: 100,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [model]
	v.SetDefault("model.name", defaultConfig.Model.Name)
	v.SetDefault("model.latent_dim", defaultConfig.Model.LatentDim)
	v.SetDefault("model.n_layers", defaultConfig.Model.NLayers)
	v.SetDefault("model.keep_prob", defaultConfig.Model.KeepProb)
	v.SetDefault("model.dropout", defaultConfig.Model.Dropout)
	v.SetDefault("model.a_split", defaultConfig.Model.ASplit)
	v.SetDefault("model.n_folds", defaultConfig.Model.NFolds)
	v.SetDefault("model.init_mean", defaultConfig.Model.InitMean)
	v.SetDefault("model.init_std", defaultConfig.Model.InitStd)
	v.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	v.SetDefault("model.jobs", defaultConfig.Model.Jobs)
	v.SetDefault("model.pretrain_path", defaultConfig.Model.PretrainPath)
	// [log]
	v.SetDefault("log.debug", defaultConfig.Log.Debug)
	v.SetDefault("log.path", defaultConfig.Log.Path)
	v.SetDefault("log.max_size", defaultConfig.Log.MaxSize)
	v.SetDefault("log.max_age", defaultConfig.Log.MaxAge)
	v.SetDefault("log.max_backups", defaultConfig.Log.MaxBackups)
}

// bindEnv reads GORSE_LGN_<SECTION>_<KEY> environment variables, e.g.
// GORSE_LGN_MODEL_N_LAYERS.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("GORSE_LGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

var logFlags = map[string]string{
	"log.debug":       "debug",
	"log.path":        "log-path",
	"log.max_size":    "log-max-size",
	"log.max_age":     "log-max-age",
	"log.max_backups": "log-max-backups",
}

// LoadConfig loads configuration from a TOML or YAML file. Values are
// overridden by environment variables and then by flags changed in flagSet.
// An empty path loads defaults only.
func LoadConfig(path string, flagSet *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefault(v)
	bindEnv(v)
	if flagSet != nil {
		for key, name := range logFlags {
			if flag := flagSet.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, errors.Trace(err)
				}
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
