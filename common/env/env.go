package env

import (
	"os"
	"strconv"
	"strings"
)

func Bool(env string, defaultValue bool) bool {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	return strings.ToLower(os.Getenv(env)) == "true"
}

func Int(env string, defaultValue int) int {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	num, err := strconv.Atoi(os.Getenv(env))
	if err != nil {
		return defaultValue
	}
	return num
}

func String(env string, defaultValue string) string {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	return os.Getenv(env)
}

// List 读取逗号分隔的列表，忽略空项
func List(env string, defaultValue []string) []string {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(os.Getenv(env), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
