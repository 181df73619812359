package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del copybot.
type Config struct {
	Copy    CopyConfig    `yaml:"copy"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// CopyConfig controla el comportamiento del motor de copia.
type CopyConfig struct {
	TargetWallet       string  `yaml:"target_wallet"`        // wallet cuyo flujo se copia
	BudgetUSDC         float64 `yaml:"budget_usdc"`          // presupuesto fijo por ventana y mercado
	WindowMS           int     `yaml:"window_ms"`            // debounce de la ventana de correlación
	DryRun             bool    `yaml:"dry_run"`              // true = nunca toca el backend de órdenes
	CopySells          bool    `yaml:"copy_sells"`           // por defecto solo se copian BUYs
	SnapshotRecords    int     `yaml:"snapshot_records"`     // records máximos en el documento JSON
	PersistSeconds     int     `yaml:"persist_seconds"`      // intervalo del ciclo de persistencia
	ResolutionSeconds  int     `yaml:"resolution_seconds"`   // intervalo del barrido de resoluciones
	ShutdownGraceSecs  int     `yaml:"shutdown_grace_secs"`  // margen para drenar ventanas en vuelo
	ReconnectDelaySecs int     `yaml:"reconnect_delay_secs"` // backoff fijo del feed
}

// APIConfig contiene los endpoints externos.
type APIConfig struct {
	FeedURL   string `yaml:"feed_url"`   // websocket de trade activity
	OrderBase string `yaml:"order_base"` // colaborador de colocación de órdenes
	GammaBase string `yaml:"gamma_base"` // metadata y resoluciones de mercados
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN          string `yaml:"dsn"`           // ruta al archivo SQLite, o ":memory:"
	SnapshotPath string `yaml:"snapshot_path"` // documento JSON con rollup + records recientes
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Window devuelve la duración de la ventana de correlación.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Copy.WindowMS) * time.Millisecond
}

// PersistInterval devuelve el intervalo del ciclo de persistencia.
func (c *Config) PersistInterval() time.Duration {
	return time.Duration(c.Copy.PersistSeconds) * time.Second
}

// ResolutionInterval devuelve el intervalo del barrido de resoluciones.
func (c *Config) ResolutionInterval() time.Duration {
	return time.Duration(c.Copy.ResolutionSeconds) * time.Second
}

// ShutdownGrace devuelve el margen de parada para ventanas en vuelo.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Copy.ShutdownGraceSecs) * time.Second
}

// ReconnectDelay devuelve el backoff fijo entre reconexiones del feed.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Copy.ReconnectDelaySecs) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("COPY_TARGET_WALLET"); v != "" {
		cfg.Copy.TargetWallet = v
	}
	if v := os.Getenv("COPY_BUDGET_USDC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Copy.BudgetUSDC = f
		}
	}
	if v := os.Getenv("COPY_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Copy.DryRun = b
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Copy.BudgetUSDC <= 0 {
		cfg.Copy.BudgetUSDC = 5
	}
	if cfg.Copy.WindowMS <= 0 {
		cfg.Copy.WindowMS = 5000
	}
	if cfg.Copy.SnapshotRecords <= 0 {
		cfg.Copy.SnapshotRecords = 1000
	}
	if cfg.Copy.PersistSeconds <= 0 {
		cfg.Copy.PersistSeconds = 60
	}
	if cfg.Copy.ResolutionSeconds <= 0 {
		cfg.Copy.ResolutionSeconds = 900
	}
	if cfg.Copy.ShutdownGraceSecs <= 0 {
		cfg.Copy.ShutdownGraceSecs = 10
	}
	if cfg.Copy.ReconnectDelaySecs <= 0 {
		cfg.Copy.ReconnectDelaySecs = 3
	}
	if cfg.API.FeedURL == "" {
		cfg.API.FeedURL = "wss://ws-live-data.polymarket.com"
	}
	if cfg.API.OrderBase == "" {
		cfg.API.OrderBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "copybot.db"
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "copybot_state.json"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
