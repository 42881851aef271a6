// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	PasswordResetURL        string `yaml:"password_reset_url"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	PayPal                  `yaml:"paypal"`
	Billing                 `yaml:"billing"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ структура для настройки подключения к брокеру сообщений
type RabbitMQ struct {
	AmqpURL        string        `yaml:"amqp_url"`
	ConnectRetries int           `yaml:"connect_retries" env-default:"5"`
	ConnectDelay   time.Duration `yaml:"connect_delay" env-default:"2s"`
}

// JWTToken структура для проверки jwt-токенов провайдера аутентификации
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// PayPal структура с учётными данными платёжного провайдера.
// Environment выбирает между песочницей и боевым контуром.
type PayPal struct {
	ClientID    string        `yaml:"client_id" env:"PAYPAL_CLIENT_ID"`
	Secret      string        `yaml:"secret" env:"PAYPAL_SECRET"`
	PlanID      string        `yaml:"plan_id"`
	Environment string        `yaml:"environment" env-default:"sandbox"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
}

// Billing структура с параметрами тарифа и пробного периода
type Billing struct {
	TrialDays int     `yaml:"trial_days" env-default:"7"`
	Plan      string  `yaml:"plan" env-default:"standard"`
	Price     float64 `yaml:"price" env-default:"2.99"`
	Currency  string  `yaml:"currency" env-default:"GBP"`
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

// IsLive сообщает, выбран ли боевой контур платёжного провайдера.
func (p PayPal) IsLive() bool {
	return p.Environment == "live" || p.Environment == "production"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"PayPal:\n"+
			"  Environment: %s\n"+
			"  PlanID: %s\n"+
			"Billing:\n"+
			"  TrialDays: %d\n"+
			"  Plan: %s\n"+
			"  Price: %.2f %s\n",
		c.Env,
		c.StorageConnectionString,
		c.AddressRedis,
		c.DB,
		c.AmqpURL,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.PayPal.Environment,
		c.PayPal.PlanID,
		c.Billing.TrialDays,
		c.Billing.Plan,
		c.Billing.Price,
		c.Billing.Currency,
	)
}
