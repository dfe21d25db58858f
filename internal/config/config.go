package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あればPOSTGRES_*より優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string

	JWTSecret string // JWT署名シークレット（検証のみ）

	GoEnv    string // dev/prod
	LogLevel string

	//価格・注文
	FreeShippingThreshold decimal.Decimal // 0以下で送料無料なし
	TaxRate               decimal.Decimal
	OrderStatusSequence   []string
	// 決済セッションが付かない注文を取り消すまでの時間（確認の間隔も兼ねる）
	CheckoutAbandonAfter time.Duration

	//ファイル
	FileRetention   time.Duration
	MaxUploadBytes  int64
	JanitorInterval time.Duration

	//スライス結果のポーリング
	ReconcileMinInterval time.Duration
	ReconcileMaxInterval time.Duration
	SlicerRPS            float64
	SlicerURL            string

	//決済
	PaymentURL    string
	PaymentAPIKey string
	WebhookSecret string

	//S3
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string
}

var defaultOrderStatusSequence = "Reviewing,In Queue,Printing,Completed,Shipping,Delivered"

// Loadは環境変数
func Load() (Config, error) {
	var err error
	cfg := Config{
		Port: os.Getenv("PORT"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv:    getenv("GO_ENV", "prod"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		SlicerURL:     os.Getenv("SLICER_URL"),
		PaymentURL:    os.Getenv("PAYMENT_URL"),
		PaymentAPIKey: os.Getenv("PAYMENT_API_KEY"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getenv("S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.DatabaseURL == "" {
		for _, key := range []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST"} {
			if os.Getenv(key) == "" {
				return Config{}, fmt.Errorf("%s is required (or DATABASE_URL)", key)
			}
		}
		if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
			return Config{}, err
		}
	}
	for key, v := range map[string]string{
		"JWT_SECRET":      cfg.JWTSecret,
		"S3_BUCKET":       cfg.S3Bucket,
		"SLICER_URL":      cfg.SlicerURL,
		"PAYMENT_URL":     cfg.PaymentURL,
		"PAYMENT_API_KEY": cfg.PaymentAPIKey,
		"WEBHOOK_SECRET":  cfg.WebhookSecret,
	} {
		if v == "" {
			return Config{}, fmt.Errorf("%s is required", key)
		}
	}

	if cfg.FreeShippingThreshold, err = decimalDefault("FREE_SHIPPING_THRESHOLD", "100"); err != nil {
		return Config{}, err
	}
	if cfg.TaxRate, err = decimalDefault("TAX_RATE", "0"); err != nil {
		return Config{}, err
	}
	if cfg.TaxRate.IsNegative() {
		return Config{}, fmt.Errorf("TAX_RATE must not be negative")
	}

	cfg.OrderStatusSequence = splitList(getenv("ORDER_STATUS_SEQUENCE", defaultOrderStatusSequence))
	if len(cfg.OrderStatusSequence) == 0 {
		return Config{}, fmt.Errorf("ORDER_STATUS_SEQUENCE must not be empty")
	}

	if cfg.CheckoutAbandonAfter, err = durationDefault("CHECKOUT_ABANDON_AFTER", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.CheckoutAbandonAfter <= 0 {
		return Config{}, fmt.Errorf("CHECKOUT_ABANDON_AFTER must be positive")
	}

	if cfg.FileRetention, err = durationDefault("FILE_RETENTION", 720*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.JanitorInterval, err = durationDefault("JANITOR_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileMinInterval, err = durationDefault("RECONCILE_MIN_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileMaxInterval, err = durationDefault("RECONCILE_MAX_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileMaxInterval < cfg.ReconcileMinInterval {
		return Config{}, fmt.Errorf("RECONCILE_MAX_INTERVAL must be >= RECONCILE_MIN_INTERVAL")
	}

	maxUpload, err := atoiDefault("MAX_UPLOAD_BYTES", 50<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	rps, err := strconv.ParseFloat(getenv("SLICER_RPS", "5"), 64)
	if err != nil || rps <= 0 {
		return Config{}, fmt.Errorf("SLICER_RPS must be a positive number")
	}
	cfg.SlicerRPS = rps

	return cfg, nil
}

func (c Config) IsDev() bool {
	return c.GoEnv == "dev"
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func decimalDefault(key string, def string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getenv(key, def))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be decimal: %w", key, err)
	}
	return d, nil
}

// カンマ区切り。空要素は捨てる。
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
