package config

import "time"

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Autosave struct {
		// 静默多久之后把最后一份内容落库，默认 2000ms
		QuietMillis int `mapstructure:"quietMillis"`
	} `mapstructure:"autosave"`
}

func (c *Config) QuietPeriod() time.Duration {
	if c.Autosave.QuietMillis <= 0 {
		return 2000 * time.Millisecond
	}
	return time.Duration(c.Autosave.QuietMillis) * time.Millisecond
}
