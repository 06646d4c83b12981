package process

import "time"

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 30 * time.Second

// Config configures the Python sandbox runner.
type Config struct {
	// Python is the interpreter binary.
	Python string `yaml:"python" mapstructure:"python"`
	// Timeout kills scripts that run longer.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// WorkDir is where per-run scratch directories are created. Empty means os.TempDir.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
	// Env is added to the inherited environment.
	Env map[string]string `yaml:"env" mapstructure:"env"`
}

// DefaultConfig returns the runner defaults.
func DefaultConfig() Config {
	return Config{Python: "python3", Timeout: DefaultTimeout}
}

func (c Config) withDefaults() Config {
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
