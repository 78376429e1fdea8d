package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Dataset datasetConfig `yaml:"dataset"`
	Scan    scanConfig    `yaml:"scan"`
	Query   queryConfig   `yaml:"query"`
	Server  serverConfig  `yaml:"server"`
	Logging loggingConfig `yaml:"logging"`
}
type datasetConfig struct {
	Path              string `yaml:"path"`
	Compression       string `yaml:"compression"` // uncompressed | snappy | gzip | zstd
	MaxRowGroupLength int64  `yaml:"max_row_group_length"`
	EnableStatistics  bool   `yaml:"enable_statistics"`
	StoreSchema       bool   `yaml:"store_schema"`
}
type scanConfig struct {
	BatchSize          int  `yaml:"batch_size"` // rows per Next call
	EnableParallelRead bool `yaml:"enable_parallel_read"`
}
type queryConfig struct {
	TableName string `yaml:"table_name"`
	// skip row groups using column chunk statistics
	EnablePruning bool `yaml:"enable_pruning"`
	// path | leaf_name, how predicate columns map onto parquet leaves
	ColumnResolution string `yaml:"column_resolution"`
	// run the statements against duckdb as well and report differences
	CrossCheck bool `yaml:"cross_check"`
}
type serverConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}
type loggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

func defaultConfig() *Config {
	return &Config{
		Dataset: datasetConfig{
			Path:              "nested.parquet",
			Compression:       "uncompressed",
			MaxRowGroupLength: 64 * 1024 * 1024,
			EnableStatistics:  true,
			StoreSchema:       true,
		},
		Scan: scanConfig{
			BatchSize:          1024,
			EnableParallelRead: false,
		},
		Query: queryConfig{
			TableName:        "base_table",
			EnablePruning:    true,
			ColumnResolution: "leaf_name",
			CrossCheck:       false,
		},
		Server: serverConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    8815,
		},
		Logging: loggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var configInstance *Config = defaultConfig()

func GetConfig() *Config {
	return configInstance
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// overwrite global instance with loaded config
func Decode(filePath string) error {
	parts := strings.Split(filePath, ".")
	suffix := parts[len(parts)-1]
	if suffix != "yaml" && suffix != "yml" {
		return errors.New("file must be a .yaml or .yml file")
	}
	r, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer r.Close()
	config := make(map[string]interface{})
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	mergeConfig(configInstance, config)
	return nil
}

func mergeConfig(dst *Config, src map[string]interface{}) {
	// =============================
	// DATASET
	// =============================
	if dataset, ok := src["dataset"].(map[string]interface{}); ok {
		if v, ok := dataset["path"].(string); ok {
			dst.Dataset.Path = v
		}
		if v, ok := dataset["compression"].(string); ok {
			dst.Dataset.Compression = v
		}
		if v, ok := dataset["max_row_group_length"].(int); ok {
			dst.Dataset.MaxRowGroupLength = int64(v)
		}
		if v, ok := dataset["enable_statistics"].(bool); ok {
			dst.Dataset.EnableStatistics = v
		}
		if v, ok := dataset["store_schema"].(bool); ok {
			dst.Dataset.StoreSchema = v
		}
	}

	// =============================
	// SCAN
	// =============================
	if scan, ok := src["scan"].(map[string]interface{}); ok {
		if v, ok := scan["batch_size"].(int); ok {
			dst.Scan.BatchSize = v
		}
		if v, ok := scan["enable_parallel_read"].(bool); ok {
			dst.Scan.EnableParallelRead = v
		}
	}

	// =============================
	// QUERY
	// =============================
	if query, ok := src["query"].(map[string]interface{}); ok {
		if v, ok := query["table_name"].(string); ok {
			dst.Query.TableName = v
		}
		if v, ok := query["enable_pruning"].(bool); ok {
			dst.Query.EnablePruning = v
		}
		if v, ok := query["column_resolution"].(string); ok {
			dst.Query.ColumnResolution = v
		}
		if v, ok := query["cross_check"].(bool); ok {
			dst.Query.CrossCheck = v
		}
	}

	// =============================
	// SERVER
	// =============================
	if server, ok := src["server"].(map[string]interface{}); ok {
		if v, ok := server["enabled"].(bool); ok {
			dst.Server.Enabled = v
		}
		if v, ok := server["host"].(string); ok {
			dst.Server.Host = v
		}
		if v, ok := server["port"].(int); ok {
			dst.Server.Port = v
		}
	}

	// =============================
	// LOGGING
	// =============================
	if logging, ok := src["logging"].(map[string]interface{}); ok {
		if v, ok := logging["level"].(string); ok {
			dst.Logging.Level = v
		}
		if v, ok := logging["format"].(string); ok {
			dst.Logging.Format = v
		}
	}
}

// Secrets are the object storage credentials used for s3:// tables.
type Secrets struct {
	EndpointURL string
	AccessKey   string
	SecretKey   string
	BucketName  string
	UseSSL      bool
}

// LoadSecrets reads a dotenv file. Variables already present in the process
// environment win over the file.
func LoadSecrets(path string) (Secrets, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return Secrets{}, fmt.Errorf("failed to read secrets from %s: %w", path, err)
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return values[key]
	}
	s := Secrets{
		EndpointURL: lookup("S3_ENDPOINT"),
		AccessKey:   lookup("S3_ACCESS_KEY"),
		SecretKey:   lookup("S3_SECRET_KEY"),
		BucketName:  lookup("S3_BUCKET"),
	}
	if raw := lookup("S3_USE_SSL"); raw != "" {
		useSSL, err := strconv.ParseBool(raw)
		if err != nil {
			return Secrets{}, fmt.Errorf("S3_USE_SSL: %w", err)
		}
		s.UseSSL = useSSL
	}
	return s, nil
}
