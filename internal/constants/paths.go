package constants

// DefaultEnvPath is the default path to the .env file
const DefaultEnvPath = "./.env"

// DefaultConfigPath is the default path to the config.toml file
const DefaultConfigPath = "./config.toml"

// DefaultRulesPath is the default path to the persisted auto-delete rules
const DefaultRulesPath = "./autodelete.json"
