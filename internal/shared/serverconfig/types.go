package serverconfig

import "time"

type Config struct {
	JWTSecret      string               `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Dev            bool                 `yaml:"dev" mapstructure:"dev"`
	PresenceServer PresenceServerConfig `yaml:"presenceserver" mapstructure:"presenceserver"`
	LandEvents     GRPCServerConfig     `yaml:"landevents" mapstructure:"landevents"`
	World          WorldConfig          `yaml:"world" mapstructure:"world"`
	Storage        StorageConfig        `yaml:"storage" mapstructure:"storage"`
	MySQL          MySQLConfig          `yaml:"mysql" mapstructure:"mysql"`
	MongoDB        MongoDBConfig        `yaml:"mongodb" mapstructure:"mongodb"`
	SQLite         SQLiteConfig         `yaml:"sqlite" mapstructure:"sqlite"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

type PresenceServerConfig struct {
	Host         string   `yaml:"host" mapstructure:"host"`
	Port         int      `yaml:"port" mapstructure:"port"`
	NeedSecret   bool     `yaml:"need_secret" mapstructure:"need_secret"`
	AllowOrigin  []string `yaml:"allow_origin" mapstructure:"allow_origin"`
	AskTimeoutMS int      `yaml:"ask_timeout_ms" mapstructure:"ask_timeout_ms"`
}

type GRPCServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type WorldConfig struct {
	Seed         int64  `yaml:"seed" mapstructure:"seed"`
	ChunkSizes   []int  `yaml:"chunk_sizes" mapstructure:"chunk_sizes"`
	MaxBatch     int    `yaml:"max_batch" mapstructure:"max_batch"`
	CacheTTLSec  int    `yaml:"cache_ttl_sec" mapstructure:"cache_ttl_sec"`
	CacheMaxCost int64  `yaml:"cache_max_cost" mapstructure:"cache_max_cost"`
	BiomeCatalog string `yaml:"biome_catalog" mapstructure:"biome_catalog"`
}

func (w WorldConfig) CacheTTL() time.Duration {
	return time.Duration(w.CacheTTLSec) * time.Second
}

// StorageConfig.Driver: memory / mysql / mongo / sqlite
type StorageConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
}

type MySQLConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"dbname" mapstructure:"dbname"`
	Charset  string `yaml:"charset" mapstructure:"charset"`
	MaxIdle  int    `yaml:"max_idle" mapstructure:"max_idle"`
	MaxConn  int    `yaml:"max_conn" mapstructure:"max_conn"`
	ShowSQL  bool   `yaml:"show_sql" mapstructure:"show_sql"`
}

type MongoDBConfig struct {
	URI             string `yaml:"uri" mapstructure:"uri"`
	Database        string `yaml:"database" mapstructure:"database"`
	ConnectTimeoutS int    `yaml:"connect_timeout_s" mapstructure:"connect_timeout_s"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type LogConfig struct {
	FileDir    string `yaml:"file_dir" mapstructure:"file_dir"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"` // days
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
	Level      string `yaml:"level" mapstructure:"level"` // debug/info/warn/error...
	Dev        bool   `yaml:"dev" mapstructure:"dev"`
}

func (c *Config) applyDefaults() {
	if c.PresenceServer.Port == 0 {
		c.PresenceServer.Port = 8088
	}
	if c.PresenceServer.AskTimeoutMS <= 0 {
		c.PresenceServer.AskTimeoutMS = 3000
	}
	if c.LandEvents.Port == 0 {
		c.LandEvents.Port = 9098
	}
	if len(c.World.ChunkSizes) == 0 {
		c.World.ChunkSizes = []int{16, 32, 64}
	}
	if c.World.MaxBatch <= 0 {
		c.World.MaxBatch = 64
	}
	if c.World.CacheTTLSec <= 0 {
		c.World.CacheTTLSec = 300
	}
	if c.World.CacheMaxCost <= 0 {
		c.World.CacheMaxCost = 1 << 20
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.MySQL.Charset == "" {
		c.MySQL.Charset = "utf8mb4"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "landverse.db"
	}
}
