package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// LoadEnv 根据环境加载 .env 文件（.env.development / .env.production）
func LoadEnv(env string) error {
	filename := fmt.Sprintf(".env.%s", env)
	f, err := os.Open(filename)
	if err != nil {
		f, err = os.Open(".env")
		if err != nil {
			return err
		}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		// 已有环境变量优先于 .env 文件
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func GetEnv(key string) string {
	return os.Getenv(key)
}

func GetEnvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

func GetIntEnvDefault(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return cast.ToInt64(v)
	}
	return def
}

func GetBoolEnv(key string) bool {
	return cast.ToBool(os.Getenv(key))
}

func GetFloatEnvDefault(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return cast.ToFloat64(v)
	}
	return def
}

// GetDurationEnvDefault 解析 "5s"、"10m" 等时长，空值或解析失败时返回默认值
func GetDurationEnvDefault(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return cast.ToDuration(v)
	}
	return d
}
