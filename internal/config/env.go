/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package config gathers the flag+env+YAML layered configuration for every
// podctl adapter (transport, postgres, redis, cache, metrics; logging flags
// live in pkg/logging): each adapter's RegisterXFlags call registers its
// flags before flag.Parse(), and the returned pointers are converted to a
// concrete Config afterward.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// GetEnv retrieves a string environment variable or returns a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt retrieves an integer environment variable or returns a default value.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable or returns a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// configFile is the lazily-loaded, parsed contents of PODCTL_CONFIG_FILE,
// shared across every GetEnvOrConfig call. Flag registration calls this
// more than once at startup; re-reading and re-parsing the same YAML file
// from disk on each call would be wasted work for a file that cannot
// change mid-process.
var configFile = struct {
	once   sync.Once
	parsed map[string]interface{}
}{}

func loadConfigFile() map[string]interface{} {
	configFile.once.Do(func() {
		configPath := os.Getenv("PODCTL_CONFIG_FILE")
		if configPath == "" {
			return
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return
		}
		var parsed map[string]interface{}
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			slog.Warn("failed to parse config file", slog.String("path", configPath), slog.String("error", err.Error()))
			return
		}
		configFile.parsed = parsed
	})
	return configFile.parsed
}

// GetEnvOrConfig checks envKey first, then falls back to configKey read
// from the YAML file named by PODCTL_CONFIG_FILE, then defaultValue.
func GetEnvOrConfig(envKey, configKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}

	parsed := loadConfigFile()
	if value, ok := parsed[configKey]; ok {
		if strValue, ok := value.(string); ok && strValue != "" {
			return strValue
		}
	}
	return defaultValue
}
