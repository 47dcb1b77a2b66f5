package config

import "time"

type Config struct {
	HTTP    HTTPConfig
	Storage StorageConfig
	Bus     BusConfig
	DB      DBConfig
}

type HTTPConfig struct {
	Addr    string
	BaseURL string
}

type StorageConfig struct {
	Bucket       string
	Compress     bool
	Retention    time.Duration
	StoreTimeout time.Duration
	KindsDir     string
}

type BusConfig struct {
	Enabled bool
	URL     string
}

type DBConfig struct {
	Enabled bool
	DSN     string
}
