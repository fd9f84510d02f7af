package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	environmentPrefix = "MODELPICK"

	rootConfigurationEmptyContentErrorFormat = "root configuration %s is empty"
	rootConfigurationUnmarshalErrorFormat    = "unmarshal root configuration %s: %w"
	invalidServerPortErrorMessage            = "server.port must be positive"
	emptySessionsDirErrorMessage             = "server.sessions_dir is empty"
)

type Root struct {
	Common      Common      `yaml:"common"`
	Server      Server      `yaml:"server"`
	LLM         LLM         `yaml:"llm"`
	HuggingFace HuggingFace `yaml:"huggingface"`
	Kaggle      Kaggle      `yaml:"kaggle"`
}

type Common struct {
	API struct {
		Endpoint  string `yaml:"endpoint"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"api"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Defaults struct {
		TimeoutSeconds      int `yaml:"timeout_seconds"`
		MaxCompletionTokens int `yaml:"max_completion_tokens"`
	} `yaml:"defaults"`
}

type Server struct {
	Port        int    `yaml:"port"`
	SessionsDir string `yaml:"sessions_dir"`
}

type LLM struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

type HuggingFace struct {
	Endpoint string `yaml:"endpoint"`
	TokenEnv string `yaml:"token_env"`
}

type Kaggle struct {
	Endpoint    string `yaml:"endpoint"`
	UsernameEnv string `yaml:"username_env"`
	KeyEnv      string `yaml:"key_env"`
	CacheDir    string `yaml:"cache_dir"`
}

// LoadRoot parses the provided configuration source, applies environment
// overrides, and validates required fields.
func LoadRoot(source RootConfigurationSource) (Root, error) {
	if len(source.Content) == 0 {
		return Root{}, fmt.Errorf(rootConfigurationEmptyContentErrorFormat, source.Reference)
	}

	var rootConfiguration Root
	if err := yaml.Unmarshal(source.Content, &rootConfiguration); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationUnmarshalErrorFormat, source.Reference, err)
	}

	applyEnvironmentOverrides(&rootConfiguration)

	if rootConfiguration.Server.Port <= 0 {
		return Root{}, errors.New(invalidServerPortErrorMessage)
	}
	if strings.TrimSpace(rootConfiguration.Server.SessionsDir) == "" {
		return Root{}, errors.New(emptySessionsDirErrorMessage)
	}
	return rootConfiguration, nil
}

// applyEnvironmentOverrides lets MODELPICK_-prefixed variables win over the
// yaml values, e.g. MODELPICK_SERVER_PORT or MODELPICK_COMMON_API_ENDPOINT.
func applyEnvironmentOverrides(rootConfiguration *Root) {
	environment := viper.New()
	environment.SetEnvPrefix(environmentPrefix)
	environment.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	environment.AutomaticEnv()

	if port := environment.GetInt("server.port"); port > 0 {
		rootConfiguration.Server.Port = port
	}
	if sessionsDir := environment.GetString("server.sessions_dir"); sessionsDir != "" {
		rootConfiguration.Server.SessionsDir = sessionsDir
	}
	if endpoint := environment.GetString("common.api.endpoint"); endpoint != "" {
		rootConfiguration.Common.API.Endpoint = endpoint
	}
	if model := environment.GetString("llm.model"); model != "" {
		rootConfiguration.LLM.Model = model
	}
}
