package config

import (
	"errors"

	"github.com/kkyr/fig"
	"github.com/mitchellh/go-homedir"
)

const EnvPrefix = "VIZ"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom path to the configuration file.
// Reads and puts environment variables with the prefix VIZ_.
// Params from the config should be in uppercase separated with _.
// Without a config file only the defaults and the environment apply.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs")
		if home, err := homedir.Expand("~/.vizrig"); err == nil {
			dirs = append(dirs, home)
		}
	}
	err := fig.Load(config, fig.File("config.yaml"), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) {
		return LoadConfigEnv(config)
	}
	return err
}

func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}
