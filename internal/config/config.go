package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	// sqlite or mysql
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"mysql"`

	Paypal     Paypal     `envPrefix:"PAYPAL_"`
	Redis      Redis      `envPrefix:"REDIS_"`
	RabbitMQ   RabbitMQ   `envPrefix:"RABBITMQ_"`
	Jwt        Jwt        `envPrefix:"JWT_"`
	IDGen      IDGen      `envPrefix:"IDGEN_"`
	Compliance Compliance `envPrefix:"COMPLIANCE_"`
	Platform   Platform   `envPrefix:"PLATFORM_"`
	Unlock     Unlock     `envPrefix:"UNLOCK_"`
}

type Paypal struct {
	BaseApiURL   string `env:"BASE_API_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	WebhookID    string `env:"WEBHOOK_ID"`
	Currency     string `env:"CURRENCY" envDefault:"USD"`
	// how long checkout metadata is kept for an unpaid session
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"72h"`
}

type Redis struct {
	Address  string `env:"ADDRESS" envDefault:"localhost:6379"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Database int    `env:"DATABASE" envDefault:"0"`
}

type RabbitMQ struct {
	URL      string `env:"URL"`
	Exchange string `env:"EXCHANGE" envDefault:"marketplace.events"`
}

type Jwt struct {
	Secret string `env:"SECRET"`
}

type IDGen struct {
	NodeID int64  `env:"NODE_ID" envDefault:"1"`
	Salt   string `env:"SALT" envDefault:"marketplace-orders"`
}

type Compliance struct {
	HomeJurisdiction string `env:"HOME_JURISDICTION" envDefault:"UAE"`
}

type Platform struct {
	// wallet owner for commission and platform-owned sales
	UserID uint64 `env:"USER_ID" envDefault:"1"`
	Name   string `env:"NAME" envDefault:"Marketplace Platform"`
}

type Unlock struct {
	Interval time.Duration `env:"INTERVAL" envDefault:"5m"`
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
