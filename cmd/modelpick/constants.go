package modelpick

const (
	rootCommandUse   = "modelpick"
	rootCommandShort = "Interactive wizard for picking ML models and datasets"

	serveCommandUse   = "serve"
	serveCommandShort = "Start the wizard HTTP server"

	catalogCommandUse   = "catalog"
	catalogCommandShort = "Print the built-in decision table"

	analyzeCommandUse   = "analyze TASK"
	analyzeCommandShort = "Ask the language model to analyze a task description"

	defaultConfigPath = ""
	configFlagName    = "config"
	configFlagUsage   = "Path to config.yaml"
	portFlagName      = "port"
	portFlagUsage     = "Listen port (overrides configuration)"

	configurationLoaderInitializationErrorFormat = "initialize configuration loader: %w"
	configurationSourceResolutionErrorFormat     = "resolve configuration source: %w"
	rootConfigurationLoadErrorFormat             = "load configuration %s: %w"

	shutdownGracePeriodSeconds = 10
)
