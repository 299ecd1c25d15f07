package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const driverName = "mysql"

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// CirculationConfig holds the policy knobs for the borrow/fine lifecycle.
// Amounts are integer cents.
type CirculationConfig struct {
	LoanPeriodDays       int   `yaml:"loan_period_days"`
	FineDueDays          int   `yaml:"fine_due_days"`
	DailyFineRateCents   int64 `yaml:"daily_fine_rate_cents"`
	ReplacementCostCents int64 `yaml:"replacement_cost_cents"`
}

type Config struct {
	Version     string            `yaml:"version"`
	Mode        string            `yaml:"mode"`
	Addr        string            `yaml:"addr"`
	DB          DatabaseConfig    `yaml:"database"`
	Certificate Certs             `yaml:"certificate"`
	Auth        AuthConfig        `yaml:"auth"`
	Circulation CirculationConfig `yaml:"circulation"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8443"
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Circulation.LoanPeriodDays <= 0 {
		c.Circulation.LoanPeriodDays = 14
	}
	if c.Circulation.FineDueDays <= 0 {
		c.Circulation.FineDueDays = 30
	}
	if c.Circulation.DailyFineRateCents <= 0 {
		c.Circulation.DailyFineRateCents = 50
	}
	if c.Circulation.ReplacementCostCents <= 0 {
		c.Circulation.ReplacementCostCents = 2500
	}
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
