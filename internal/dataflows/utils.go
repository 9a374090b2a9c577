package dataflows

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phuslu/log"
)

// CacheManager handles file-based caching of upstream responses
type CacheManager struct {
	cacheDir     string
	ttl          time.Duration
	cacheEnabled bool
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string, ttl time.Duration, cacheEnabled bool) *CacheManager {
	return &CacheManager{
		cacheDir:     cacheDir,
		ttl:          ttl,
		cacheEnabled: cacheEnabled && cacheDir != "",
	}
}

func (cm *CacheManager) getCacheKey(source, method string, params any) string {
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return fmt.Sprintf("%s_%s_%x.json", source, method, hash)
}

// Get returns the cached body if present and not expired
func (cm *CacheManager) Get(source, method string, params any) ([]byte, bool) {
	if cm == nil || !cm.cacheEnabled {
		return nil, false
	}

	filePath := filepath.Join(cm.cacheDir, cm.getCacheKey(source, method, params))

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > cm.ttl {
		_ = os.Remove(filePath)
		return nil, false
	}

	data, err := os.ReadFile(filePath)
	if err != nil || !json.Valid(data) {
		return nil, false
	}
	return data, true
}

// Set stores a raw JSON body
func (cm *CacheManager) Set(source, method string, params any, body []byte) {
	if cm == nil || !cm.cacheEnabled {
		return
	}

	if err := os.MkdirAll(cm.cacheDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", cm.cacheDir).Msg("cache directory unavailable")
		return
	}

	filePath := filepath.Join(cm.cacheDir, cm.getCacheKey(source, method, params))
	if err := os.WriteFile(filePath, body, 0o644); err != nil {
		log.Warn().Err(err).Str("file", filePath).Msg("cache write failed")
	}
}

// ValidateSymbol checks if a stock symbol is valid format
func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 10 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	return nil
}

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}
