package config

// ConfigPath is the default location of the YAML configuration file,
// relative to the working directory of the process.
const ConfigPath = "config.yaml"
