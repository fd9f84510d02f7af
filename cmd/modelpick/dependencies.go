package modelpick

import (
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/modelpick/modelpick/internal/advisor"
	"github.com/modelpick/modelpick/internal/catalog"
	"github.com/modelpick/modelpick/internal/config"
	"github.com/modelpick/modelpick/internal/fsops"
	"github.com/modelpick/modelpick/internal/huggingface"
	"github.com/modelpick/modelpick/internal/kaggle"
	"github.com/modelpick/modelpick/internal/llm"
	"github.com/modelpick/modelpick/internal/server"
	"github.com/modelpick/modelpick/internal/session"
)

const fallbackClientTimeoutSeconds = 45

// clientTimeout turns the configured timeout_seconds into the deadline every
// outbound HTTP client runs under.
func clientTimeout(rootConfiguration config.Root) time.Duration {
	seconds := rootConfiguration.Common.Defaults.TimeoutSeconds
	if seconds <= 0 {
		seconds = fallbackClientTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// newAdvisor builds the LLM-backed advisor, or returns nil when the API key
// environment variable named by the configuration is unset.
func newAdvisor(rootConfiguration config.Root, decisionTable *catalog.Catalog) *advisor.Advisor {
	apiKey := os.Getenv(rootConfiguration.Common.API.APIKeyEnv)
	if apiKey == "" {
		return nil
	}
	client := &llm.Client{
		HTTPBaseURL:         rootConfiguration.Common.API.Endpoint,
		APIKey:              apiKey,
		ModelIdentifier:     rootConfiguration.LLM.Model,
		MaxCompletionTokens: rootConfiguration.Common.Defaults.MaxCompletionTokens,
		Temperature:         rootConfiguration.LLM.Temperature,
		HTTPClient:          &http.Client{Timeout: clientTimeout(rootConfiguration)},
	}

	classificationModels, _ := decisionTable.Models("Tabular", "classification")
	regressionModels, _ := decisionTable.Models("Tabular", "regression")
	return advisor.New(client, classificationModels, regressionModels)
}

func newHubClient(rootConfiguration config.Root) *huggingface.Client {
	token := os.Getenv(rootConfiguration.HuggingFace.TokenEnv)
	client := huggingface.New(rootConfiguration.HuggingFace.Endpoint, token)
	client.HTTPClient.Timeout = clientTimeout(rootConfiguration)
	return client
}

// newKaggleClient returns nil without error when credentials are absent;
// the search route then reports the source as unconfigured.
func newKaggleClient(rootConfiguration config.Root, filesystem fsops.FS) (*kaggle.Client, error) {
	credentials := kaggle.Credentials{
		Username: os.Getenv(rootConfiguration.Kaggle.UsernameEnv),
		Key:      os.Getenv(rootConfiguration.Kaggle.KeyEnv),
	}
	client, err := kaggle.New(rootConfiguration.Kaggle.Endpoint, credentials, filesystem, rootConfiguration.Kaggle.CacheDir)
	if err != nil {
		if errors.Is(err, kaggle.ErrMissingCredentials) {
			return nil, nil
		}
		return nil, err
	}
	client.HTTPClient.Timeout = clientTimeout(rootConfiguration)
	return client, nil
}

func buildServerDependencies(rootConfiguration config.Root, logger *zap.Logger) (server.Dependencies, error) {
	filesystem := fsops.NewOS()
	decisionTable := catalog.Default()

	dependencies := server.Dependencies{
		Catalog:  decisionTable,
		Sessions: session.NewStore(filesystem, rootConfiguration.Server.SessionsDir),
		Hub:      newHubClient(rootConfiguration),
		Logger:   logger,
	}

	if taskAdvisor := newAdvisor(rootConfiguration, decisionTable); taskAdvisor != nil {
		dependencies.Advisor = taskAdvisor
	} else {
		logger.Warn("llm api key is not set, task analysis disabled",
			zap.String("environment_variable", rootConfiguration.Common.API.APIKeyEnv))
	}

	kaggleClient, kaggleErr := newKaggleClient(rootConfiguration, filesystem)
	if kaggleErr != nil {
		return server.Dependencies{}, kaggleErr
	}
	if kaggleClient != nil {
		dependencies.Kaggle = kaggleClient
	} else {
		logger.Warn("kaggle credentials are not set, kaggle search disabled")
	}

	return dependencies, nil
}
