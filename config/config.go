// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/nodesettings/internal/dbopen"
	"github.com/cardinalhq/nodesettings/internal/healthcheck"
	"github.com/cardinalhq/nodesettings/internal/kafkarelay"
	"github.com/cardinalhq/nodesettings/settings"
)

// Config aggregates configuration for the application.
// Each section is owned by the package that consumes it.
type Config struct {
	Settings SettingsConfig     `mapstructure:"settings"`
	Database DatabaseConfig     `mapstructure:"database"`
	Kafka    kafkarelay.Config  `mapstructure:"kafka"`
	Health   healthcheck.Config `mapstructure:"health"`

	// TypesFile is a YAML file declaring settings types without Go structs.
	TypesFile string `mapstructure:"types_file"`
}

type SettingsConfig struct {
	CacheTTL        time.Duration  `mapstructure:"cache_ttl"`
	InjectStartPage bool           `mapstructure:"inject_start_page"`
	Messages        MessagesConfig `mapstructure:"messages"`
}

type MessagesConfig struct {
	DeleteGlobal string `mapstructure:"delete_global"`
	MoveGlobal   string `mapstructure:"move_global"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// ServiceOptions converts the settings section into settings.Options.
func (c SettingsConfig) ServiceOptions() settings.Options {
	return settings.Options{
		CacheTTL:                  c.CacheTTL,
		DisableStartPageInjection: !c.InjectStartPage,
		Messages: settings.Messages{
			DeleteGlobal: c.Messages.DeleteGlobal,
			MoveGlobal:   c.Messages.MoveGlobal,
		},
	}
}

// DatabaseURL returns database.url, or the URL described by the
// SETTINGSDB_ variables when it is unset.
func (c *Config) DatabaseURL() (string, error) {
	if c.Database.URL != "" {
		return c.Database.URL, nil
	}
	return dbopen.GetDatabaseURLFromEnv(dbopen.EnvPrefix)
}

func defaultConfig() *Config {
	msgs := settings.DefaultMessages()
	return &Config{
		Settings: SettingsConfig{
			InjectStartPage: true,
			Messages: MessagesConfig{
				DeleteGlobal: msgs.DeleteGlobal,
				MoveGlobal:   msgs.MoveGlobal,
			},
		},
		Kafka:  kafkarelay.DefaultConfig(),
		Health: healthcheck.DefaultConfig(),
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "NODESETTINGS" and the dot character
// in keys is replaced by an underscore. For example, "kafka.brokers" becomes
// "NODESETTINGS_KAFKA_BROKERS".
func Load() (*Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("NODESETTINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = strings.Split(b, ",")
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
