package configmgr_test

import (
	"os"
	"testing"

	"github.com/marcodd23/go-tx-bridge/pkg/configmgr"
	"github.com/stretchr/testify/assert"
)

// Shared configuration content
var configContent = `
name: "TestApp"
environment: "development"
version: "latest"
logging:
  level: "debug"
database:
  host: localhost
  port: 5432
  name: main-db
  user: postgres
  password: password
  maxConn: 10
  autoCommit: false
server:
  port: "8080"
  concurrency: 10
  disableStartupMsg: false
`

type TestConfiguration struct {
	configmgr.BaseConfig `mapstructure:",squash"`
}

func createTestConfigFile(t *testing.T, content string) string {
	file, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}
	defer file.Close()

	_, err = file.WriteString(content)
	if err != nil {
		t.Fatalf("Failed to write to temp config file: %v", err)
	}

	return file.Name()
}

func TestLoadConfigFromFile(t *testing.T) {
	configFilePath := createTestConfigFile(t, configContent)
	defer os.Remove(configFilePath)

	var cfg TestConfiguration
	err := configmgr.ReadConfiguration(configFilePath, &cfg)
	assert.NoError(t, err)
	assert.Equal(t, "TestApp", cfg.GetServiceName())
	assert.Equal(t, "development", cfg.GetEnvironment())
	assert.True(t, cfg.IsLocalEnvironment())
	assert.NotNil(t, cfg.Logging)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NotNil(t, cfg.Server)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.Concurrency)
	assert.Equal(t, false, cfg.Server.DisableStartupMessage)
	assert.NotNil(t, cfg.Database)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, int32(5432), cfg.Database.Port)
	assert.Equal(t, "main-db", cfg.Database.Name)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, int32(10), cfg.Database.MaxConn)
	assert.Equal(t, false, cfg.Database.AutoCommit)
}

func TestEnvVariableOverridesConfig(t *testing.T) {
	configFilePath := createTestConfigFile(t, configContent)
	defer os.Remove(configFilePath)

	// Set environment variable to override the database user
	os.Setenv("DATABASE_USER", "override-user")
	defer os.Unsetenv("DATABASE_USER")

	var cfg TestConfiguration
	err := configmgr.ReadConfiguration(configFilePath, &cfg)
	assert.NoError(t, err)
	assert.Equal(t, "TestApp", cfg.GetServiceName())
	assert.Equal(t, "override-user", cfg.Database.User)
}
